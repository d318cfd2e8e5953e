package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/meshrt/rt/core"
)

// NoAlloc marks an optional heap region that was not allocated
// (e.g. a geometry without normals).
const NoAlloc = ^uint64(0)

// Span is one carved region of the heap: byte offset plus size. Offsets
// are immutable for the scene's lifetime; the heap never moves data.
type Span struct {
	Offset uint64
	Size   uint64
}

func (s Span) Valid() bool { return s.Offset != NoAlloc }

// GeometryLayout records where one geometry's buffers live in the heap.
type GeometryLayout struct {
	Vertices Span
	Indices  Span
	Normals  Span // Offset == NoAlloc when absent
	UVs      Span // Offset == NoAlloc when absent

	VertexCount   uint32
	TriangleCount uint32
}

// MeshLayout records the geometry-id buffer of one mesh: one u32 per
// local geometry holding its globally unique geometry index.
type MeshLayout struct {
	GeometryIDs Span
	FirstGeom   uint32
	GeomCount   uint32
}

// HeapLayout is the full allocation plan for a scene: every span that
// will be carved, in the fixed enumeration order meshes -> instances ->
// textures. Computed before any device memory is touched.
type HeapLayout struct {
	Meshes      []MeshLayout
	Geometries  []GeometryLayout // global geometry order
	MaterialIDs []Span           // per instance
	Textures    []Span           // per texture, RGBA8 pixel block
	Total       uint64
}

// Sizes in bytes of the packed element formats the kernel reads.
const (
	vertexStride = 12 // 3 x f32
	normalStride = 12
	uvStride     = 8 // 2 x f32
	indexStride  = 4 // u32
	idStride     = 4 // u32
	texelStride  = 4 // RGBA8
)

// ComputeHeapLayout walks the scene in allocation order and produces
// the full heap plan. Pure; does not touch the device.
func ComputeHeapLayout(scene *core.Scene) HeapLayout {
	l := HeapLayout{}
	var cursor uint64

	carve := func(size uint64) Span {
		s := Span{Offset: cursor, Size: size}
		cursor += align4(size)
		return s
	}

	// Meshes in scene order: geometry-id buffer, then each geometry's
	// vertex/index/optional normal/uv buffers.
	geomBase := uint32(0)
	for mi := range scene.Meshes {
		mesh := &scene.Meshes[mi]
		ml := MeshLayout{
			GeometryIDs: carve(uint64(len(mesh.Geometries)) * idStride),
			FirstGeom:   geomBase,
			GeomCount:   uint32(len(mesh.Geometries)),
		}
		for gi := range mesh.Geometries {
			g := &mesh.Geometries[gi]
			gl := GeometryLayout{
				Vertices:      carve(uint64(len(g.Vertices)) * vertexStride),
				Indices:       carve(uint64(len(g.Indices)) * indexStride),
				Normals:       Span{Offset: NoAlloc},
				UVs:           Span{Offset: NoAlloc},
				VertexCount:   uint32(len(g.Vertices)),
				TriangleCount: uint32(g.TriangleCount()),
			}
			if g.HasNormals() {
				gl.Normals = carve(uint64(len(g.Normals)) * normalStride)
			}
			if g.HasUVs() {
				gl.UVs = carve(uint64(len(g.UVs)) * uvStride)
			}
			l.Geometries = append(l.Geometries, gl)
		}
		geomBase += ml.GeomCount
		l.Meshes = append(l.Meshes, ml)
	}

	// Instances: material-id buffer each.
	for ii := range scene.Instances {
		in := &scene.Instances[ii]
		l.MaterialIDs = append(l.MaterialIDs, carve(uint64(len(in.MaterialIDs))*idStride))
	}

	// Textures: tightly packed RGBA8 pixel blocks. sRGB vs linear is
	// carried as a flag in the texture argument table, not as a format
	// distinction in the heap.
	for ti := range scene.Textures {
		t := &scene.Textures[ti]
		l.Textures = append(l.Textures, carve(uint64(t.Width)*uint64(t.Height)*texelStride))
	}

	l.Total = cursor
	return l
}

// AllocatedBytes sums every span actually carved. Always equals Total;
// the check exists so tests can prove no allocation is unaccounted.
func (l *HeapLayout) AllocatedBytes() uint64 {
	var sum uint64
	add := func(s Span) {
		if s.Valid() {
			sum += align4(s.Size)
		}
	}
	for i := range l.Meshes {
		add(l.Meshes[i].GeometryIDs)
	}
	for i := range l.Geometries {
		add(l.Geometries[i].Vertices)
		add(l.Geometries[i].Indices)
		add(l.Geometries[i].Normals)
		add(l.Geometries[i].UVs)
	}
	for _, s := range l.MaterialIDs {
		add(s)
	}
	for _, s := range l.Textures {
		add(s)
	}
	return sum
}

// Heap is the single pre-sized device arena all private scene data is
// carved from. Once uploaded it is shared read-only by every pass.
type Heap struct {
	Buffer *wgpu.Buffer
	Layout HeapLayout

	capacity uint64
}

// NewHeap reserves device memory for the whole layout. Fails with
// ErrHeapExhausted when the plan exceeds the device's addressable heap;
// that is reported, never retried.
func NewHeap(ctx *Context, layout HeapLayout) (*Heap, error) {
	size := layout.Total
	if size == 0 {
		size = 4 // wgpu rejects zero-sized buffers
	}
	if size > ctx.Limits.MaxBufferSize || size > uint64(ctx.Limits.MaxStorageBufferBindingSize) {
		return nil, fmt.Errorf("%w: need %d bytes, device max %d",
			ErrHeapExhausted, size, ctx.Limits.MaxBufferSize)
	}

	buf, err := ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SceneHeap",
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeapExhausted, err)
	}
	return &Heap{Buffer: buf, Layout: layout, capacity: size}, nil
}

// Capacity is the reserved arena size in bytes.
func (h *Heap) Capacity() uint64 { return h.capacity }

func (h *Heap) Release() {
	if h.Buffer != nil {
		h.Buffer.Release()
		h.Buffer = nil
	}
}

func align4(n uint64) uint64 {
	if n%4 != 0 {
		n += 4 - n%4
	}
	return n
}
