package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/meshrt/rt/core"
)

func TestPackViewParamsLayout(t *testing.T) {
	v := core.ComputeViewParams(
		mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0},
		45, 320, 200, 7)
	buf := packViewParams(&v)
	assert.Len(t, buf, viewParamsSize)

	f32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	}
	assert.Equal(t, float32(1), f32(0))
	assert.Equal(t, float32(2), f32(4))
	assert.Equal(t, float32(3), f32(8))

	assert.InDelta(t, v.DirDU.X(), f32(16), 1e-6)
	assert.InDelta(t, v.DirDV.Y(), f32(36), 1e-6)
	assert.InDelta(t, v.DirTopLeft.Z(), f32(56), 1e-6)

	assert.Equal(t, uint32(320), binary.LittleEndian.Uint32(buf[64:]))
	assert.Equal(t, uint32(200), binary.LittleEndian.Uint32(buf[68:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[72:]))
}

func TestReadbackRowAlignment(t *testing.T) {
	// Texture->buffer copies need 256-byte row pitch.
	assert.Equal(t, uint32(256), readbackBytesPerRow(1))
	assert.Equal(t, uint32(256), readbackBytesPerRow(64))
	assert.Equal(t, uint32(512), readbackBytesPerRow(65))
	assert.Equal(t, uint32(1024), readbackBytesPerRow(256))
}

func TestDispatchGridCoversFramebuffer(t *testing.T) {
	// Ceil division tiles: the grid must cover every pixel with at most
	// one extra workgroup per axis.
	for _, tc := range []struct{ dim, wg, want uint32 }{
		{64, 16, 4},
		{65, 16, 5},
		{1, 16, 1},
		{16, 16, 1},
		{100, 8, 13},
	} {
		got := (tc.dim + tc.wg - 1) / tc.wg
		assert.Equal(t, tc.want, got, "dim %d wg %d", tc.dim, tc.wg)
		assert.GreaterOrEqual(t, got*tc.wg, tc.dim)
		assert.Less(t, (got-1)*tc.wg, tc.dim)
	}
}

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	assert.Equal(t, uint32(16), o.workgroupSize)
	assert.Nil(t, o.window)
	assert.NotNil(t, o.logger)

	WithWorkgroupSize(8)(&o)
	WithDebug(true)(&o)
	assert.Equal(t, uint32(8), o.workgroupSize)
	assert.True(t, o.debug)
}
