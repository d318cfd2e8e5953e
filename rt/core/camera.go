package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ViewParams are the per-frame camera-derived values the kernel uses to
// generate primary rays. DirDU/DirDV span the image plane scaled to the
// field of view; DirTopLeft is the ray direction through pixel (0,0).
type ViewParams struct {
	Position   mgl32.Vec3
	DirDU      mgl32.Vec3
	DirDV      mgl32.Vec3
	DirTopLeft mgl32.Vec3
	Width      uint32
	Height     uint32
	FrameID    uint32
}

// ComputeViewParams derives the ray-generation basis from the camera pose.
// fovyDeg is the vertical field of view in degrees.
func ComputeViewParams(pos, dir, up mgl32.Vec3, fovyDeg float32, width, height, frameID uint32) ViewParams {
	d := dir.Normalize()

	planeY := 2 * float32(math.Tan(float64(mgl32.DegToRad(fovyDeg))*0.5))
	planeX := planeY * float32(width) / float32(height)

	dirDU := d.Cross(up).Normalize().Mul(planeX)
	// DirDV points down-image so pixel rows match framebuffer row order.
	dirDV := d.Cross(dirDU).Normalize().Mul(planeY)
	topLeft := d.Sub(dirDU.Mul(0.5)).Sub(dirDV.Mul(0.5))

	return ViewParams{
		Position:   pos,
		DirDU:      dirDU,
		DirDV:      dirDV,
		DirTopLeft: topLeft,
		Width:      width,
		Height:     height,
		FrameID:    frameID,
	}
}

// FrameCounter tracks the temporal accumulation counter. It resets to
// zero whenever the camera moved and otherwise increases by one per
// completed frame.
type FrameCounter struct {
	next uint32
}

// Begin returns the frame id for the frame about to render.
func (f *FrameCounter) Begin(cameraChanged bool) uint32 {
	if cameraChanged {
		f.next = 0
	}
	return f.next
}

// Complete records that the frame using the id from Begin finished.
func (f *FrameCounter) Complete() {
	f.next++
}

// Reset puts the counter back to the post-SetScene state.
func (f *FrameCounter) Reset() {
	f.next = 0
}
