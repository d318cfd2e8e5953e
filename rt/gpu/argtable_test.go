package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestTableLayoutStrides(t *testing.T) {
	// The declared field lists must produce the strides the kernel's
	// struct declarations assume.
	assert.Equal(t, uint32(80), instanceTableLayout.Stride())
	assert.Equal(t, uint32(24), meshTableLayout.Stride())
	assert.Equal(t, uint32(24), geometryTableLayout.Stride())
	assert.Equal(t, uint32(16), textureTableLayout.Stride())
}

func TestTableLayoutAlignmentRules(t *testing.T) {
	// A vec4 after a scalar gets padded to its 16-byte alignment, and
	// the stride rounds up to the widest member.
	l := NewTableLayout("t", Field{"a", FieldU32}, Field{"b", FieldVec4})
	assert.Equal(t, uint32(0), l.offsets[0])
	assert.Equal(t, uint32(16), l.offsets[1])
	assert.Equal(t, uint32(32), l.Stride())

	// Scalars pack tight with 4-byte stride alignment.
	l = NewTableLayout("t", Field{"a", FieldU32}, Field{"b", FieldF32}, Field{"c", FieldRef})
	assert.Equal(t, uint32(12), l.Stride())
}

func TestRecordWrites(t *testing.T) {
	l := NewTableLayout("t",
		Field{"ref", FieldRef},
		Field{"count", FieldU32},
		Field{"scale", FieldF32},
	)
	data := make([]byte, l.Stride())
	rec := Record{layout: l, data: data}

	rec.SetRef(0, Span{Offset: 256, Size: 64})
	rec.SetU32(1, 7)
	rec.SetF32(2, 1.5)

	// References encode as word offsets into the heap.
	assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(data[8:12])))

	// Absent spans encode as the sentinel.
	rec.SetRef(0, Span{Offset: NoAlloc})
	assert.Equal(t, NoRef, binary.LittleEndian.Uint32(data[0:4]))
}

func TestRecordKindMismatchPanics(t *testing.T) {
	l := NewTableLayout("t", Field{"m", FieldMat4})
	rec := Record{layout: l, data: make([]byte, l.Stride())}
	assert.Panics(t, func() { rec.SetF32(0, 1) })
}

func decodeMat4(b []byte) mgl32.Mat4 {
	var m mgl32.Mat4
	for c := 0; c < 16; c++ {
		m[c] = math.Float32frombits(binary.LittleEndian.Uint32(b[c*4:]))
	}
	return m
}

func TestInstanceInverseTransformRoundTrip(t *testing.T) {
	// The instance table carries the inverse of the placement transform;
	// applying both must land back at identity.
	transform := mgl32.Translate3D(2, -3, 5).
		Mul4(mgl32.HomogRotate3DY(0.7)).
		Mul4(mgl32.Scale3D(2, 2, 2))

	inv := transform.Inv()
	data := make([]byte, instanceTableLayout.Stride())
	rec := Record{layout: instanceTableLayout, data: data}
	rec.SetMat4(0, inv)

	got := decodeMat4(data[0:64])
	id := got.Mul4(transform)
	for c := 0; c < 16; c++ {
		want := float32(0)
		if c%5 == 0 {
			want = 1
		}
		assert.InDelta(t, want, id[c], 1e-4, "element %d", c)
	}
}
