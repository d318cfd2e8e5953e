package gpu

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/meshrt/rt/core"
)

// newE2ERenderer brings up a headless device or skips when the host has
// no usable adapter.
func newE2ERenderer(t *testing.T, w, h int) *Renderer {
	t.Helper()
	if testing.Short() {
		t.Skip("gpu test skipped in short mode")
	}
	r, err := NewRenderer()
	if err != nil {
		t.Skipf("no gpu adapter: %v", err)
	}
	t.Cleanup(r.Release)
	require.NoError(t, r.Initialize(w, h))
	return r
}

// quadScene is a single red quad in the z=0 plane, facing +z.
func quadScene() *core.Scene {
	s := core.NewScene()
	s.Meshes = []core.Mesh{{Geometries: []core.Geometry{{
		Vertices: []mgl32.Vec3{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}}}}
	s.Instances = []core.Instance{{Transform: mgl32.Ident4(), MeshIndex: 0, MaterialIDs: []uint32{0}}}
	s.Materials = []core.Material{{BaseColor: mgl32.Vec3{1, 0, 0}, TextureID: -1}}
	return s
}

func TestRenderQuadHitsBaseColor(t *testing.T) {
	r := newE2ERenderer(t, 64, 64)
	require.NoError(t, r.SetScene(quadScene()))

	// Every table reports stride x count, including the empty texture
	// table of this untextured scene.
	for _, tb := range []*Table{r.tables.Instance, r.tables.Mesh, r.tables.Geometry, r.tables.Texture} {
		assert.Equal(t, uint64(tb.Layout.Stride())*uint64(tb.Count), tb.Size(), tb.Layout.name)
	}
	assert.Zero(t, r.tables.Texture.Size())

	stats, err := r.Render(
		mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0},
		45, false, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stats.FrameID)
	assert.True(t, stats.Readback)

	// Straight-on view: shading resolves to the raw base color at the
	// image center, and the quad doesn't cover the corners.
	fb := r.Framebuffer()
	center := (32*64 + 32) * 4
	assert.InDelta(t, 255, int(fb[center]), 3, "center red")
	assert.InDelta(t, 0, int(fb[center+1]), 3, "center green")
	assert.Equal(t, uint8(255), fb[center+3], "center alpha")

	corner := 0
	assert.Less(t, int(fb[corner]), 64, "corner should be background")
}

func TestRenderAccumulationCounter(t *testing.T) {
	r := newE2ERenderer(t, 32, 32)
	require.NoError(t, r.SetScene(quadScene()))

	pose := func(changed bool) (RenderStats, error) {
		return r.Render(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0},
			45, changed, true)
	}

	s0, err := pose(false)
	require.NoError(t, err)
	s1, err := pose(false)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), s0.FrameID)
	assert.Equal(t, uint32(1), s1.FrameID)

	// A static scene accumulates to a stable image. Allow one step of
	// quantization drift from the running average.
	frame1 := append([]byte(nil), r.Framebuffer()...)
	s2, err := pose(false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), s2.FrameID)
	for i, b := range r.Framebuffer() {
		if d := int(b) - int(frame1[i]); d < -1 || d > 1 {
			t.Fatalf("pixel byte %d drifted: %d -> %d", i, frame1[i], b)
		}
	}

	// Moving the camera restarts accumulation.
	s3, err := pose(true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), s3.FrameID)
}

func TestCameraMotionDoesNotRebuildTLAS(t *testing.T) {
	r := newE2ERenderer(t, 16, 16)
	require.NoError(t, r.SetScene(quadScene()))
	require.Equal(t, 1, r.TLASRebuilds())

	for i := 0; i < 3; i++ {
		_, err := r.Render(mgl32.Vec3{0, float32(i), 5}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0},
			45, true, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, r.TLASRebuilds())

	// Replacing the scene is what rebuilds it.
	require.NoError(t, r.SetScene(quadScene()))
	assert.Equal(t, 2, r.TLASRebuilds())
}

func TestSingularInstanceRejectedOnSetScene(t *testing.T) {
	r := newE2ERenderer(t, 8, 8)

	s := quadScene()
	s.Instances[0].Transform = mgl32.Scale3D(0, 1, 1)
	err := r.SetScene(s)
	require.ErrorIs(t, err, ErrAccelBuild)

	// The failed load leaves no usable scene behind.
	_, err = r.Render(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, 45, false, false)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestRenderBeforeSceneFails(t *testing.T) {
	r := newE2ERenderer(t, 8, 8)
	_, err := r.Render(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, 45, false, false)
	require.ErrorIs(t, err, ErrNotInitialized)
}
