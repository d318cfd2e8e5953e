package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/gekko3d/meshrt/rt/bvh"
)

// AccelState is the lifecycle of an acceleration structure. Only
// Compacted structures may be referenced by the top-level structure or
// a dispatch; the transition is runtime-checked, not convention.
type AccelState int

const (
	AccelUninitialized AccelState = iota
	AccelBuilt
	AccelCompacted
)

func (s AccelState) String() string {
	switch s {
	case AccelUninitialized:
		return "uninitialized"
	case AccelBuilt:
		return "built"
	case AccelCompacted:
		return "compacted"
	}
	return "invalid"
}

// accel carries the shared build/compact bookkeeping: the worst-case
// scratch allocation and the two sizes the compaction invariant is
// checked against.
type accel struct {
	ID    uuid.UUID
	state AccelState

	scratch       *wgpu.Buffer
	builtSize     uint64
	compactedSize uint64
}

// BuiltSize is the worst-case scratch size the structure was built into.
func (a *accel) BuiltSize() uint64 { return a.builtSize }

// CompactedSize is the tight size queried after the build finished.
// Zero until the structure reaches Built.
func (a *accel) CompactedSize() uint64 { return a.compactedSize }

func (a *accel) State() AccelState { return a.state }

func (a *accel) requireState(want AccelState, op string) error {
	if a.state != want {
		return fmt.Errorf("%w: %s on %s structure %s", ErrAccelBuild, op, a.state, a.ID)
	}
	return nil
}

func (a *accel) releaseScratch() {
	if a.scratch != nil {
		a.scratch.Release()
		a.scratch = nil
	}
}

// BLASAccel is one mesh's bottom-level structure. After compaction its
// nodes and primitive records live in the shared accel arena at
// NodesSpan/PrimsSpan so a single binding reaches every mesh.
type BLASAccel struct {
	accel
	CPU *bvh.BLAS

	NodesSpan Span
	PrimsSpan Span
}

// NewBLASAccel wraps a finished CPU build, still Uninitialized on the
// device.
func NewBLASAccel(b *bvh.BLAS) *BLASAccel {
	return &BLASAccel{accel: accel{ID: uuid.New()}, CPU: b}
}

// scratchSize is the worst-case footprint: node bound for the triangle
// count plus one primitive record per triangle.
func (b *BLASAccel) scratchSize() uint64 {
	worstNodes := uint64(bvh.WorstCaseNodes(len(b.CPU.Prims))) * bvh.NodeSize
	worstPrims := uint64(len(b.CPU.Prims)) * bvh.PrimitiveSize
	return worstNodes + worstPrims
}

// tightSize is the true size known once the build has finished.
func (b *BLASAccel) tightSize() (nodes, prims uint64) {
	return uint64(len(b.CPU.Nodes)) * bvh.NodeSize, uint64(len(b.CPU.Prims)) * bvh.PrimitiveSize
}

// Build uploads the structure into worst-case scratch memory in one
// synchronous submission and records the compacted size query result.
func (b *BLASAccel) Build(ctx *Context) error {
	if err := b.requireState(AccelUninitialized, "build"); err != nil {
		return err
	}

	b.builtSize = b.scratchSize()
	scratch, err := ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "BLASScratch",
		Size:  b.builtSize,
		Usage: wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: blas %s scratch: %v", ErrAccelBuild, b.ID, err)
	}
	b.scratch = scratch

	nodeBytes := bvh.SerializeNodes(b.CPU.Nodes)
	primBytes := bvh.SerializePrimitives(b.CPU.Prims)
	tightNodes, _ := b.tightSize()
	err = blitRegions(ctx, scratch, []stagingRegion{
		{dstOffset: 0, data: nodeBytes},
		{dstOffset: tightNodes, data: primBytes},
	})
	if err != nil {
		b.releaseScratch()
		return fmt.Errorf("%w: blas %s build: %v", ErrAccelBuild, b.ID, err)
	}

	nodes, prims := b.tightSize()
	b.compactedSize = nodes + prims
	b.state = AccelBuilt
	return nil
}

// Compact copies the tight prefix from scratch into the arena at the
// given spans in a second submission, then releases the scratch. The
// spans become the structure's permanent addresses.
func (b *BLASAccel) Compact(ctx *Context, arena *wgpu.Buffer, nodes, prims Span) error {
	if err := b.requireState(AccelBuilt, "compact"); err != nil {
		return err
	}
	tightNodes, tightPrims := b.tightSize()
	if nodes.Size < tightNodes || prims.Size < tightPrims {
		return fmt.Errorf("%w: blas %s arena spans too small", ErrAccelBuild, b.ID)
	}

	err := ctx.Submit("BLASCompact", func(enc *wgpu.CommandEncoder) error {
		if err := enc.CopyBufferToBuffer(b.scratch, 0, arena, nodes.Offset, tightNodes); err != nil {
			return err
		}
		return enc.CopyBufferToBuffer(b.scratch, tightNodes, arena, prims.Offset, tightPrims)
	})
	b.releaseScratch()
	if err != nil {
		return fmt.Errorf("%w: blas %s compact: %v", ErrAccelBuild, b.ID, err)
	}

	b.NodesSpan = nodes
	b.PrimsSpan = prims
	b.state = AccelCompacted
	return nil
}

// TLASAccel is the top-level structure over all scene instances. It
// gets its own tightly-sized buffer after compaction.
type TLASAccel struct {
	accel
	CPU *bvh.TLAS

	Buffer *wgpu.Buffer
}

func NewTLASAccel(t *bvh.TLAS) *TLASAccel {
	return &TLASAccel{accel: accel{ID: uuid.New()}, CPU: t}
}

// Build uploads into worst-case scratch; instanceCount bounds the node
// count the same way triangle count bounds a bottom-level build.
func (t *TLASAccel) Build(ctx *Context, instanceCount int) error {
	if err := t.requireState(AccelUninitialized, "build"); err != nil {
		return err
	}

	t.builtSize = uint64(bvh.WorstCaseNodes(instanceCount)) * bvh.NodeSize
	scratch, err := ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "TLASScratch",
		Size:  t.builtSize,
		Usage: wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: tlas %s scratch: %v", ErrAccelBuild, t.ID, err)
	}
	t.scratch = scratch

	if err := blitBytes(ctx, scratch, 0, bvh.SerializeNodes(t.CPU.Nodes)); err != nil {
		t.releaseScratch()
		return fmt.Errorf("%w: tlas %s build: %v", ErrAccelBuild, t.ID, err)
	}

	t.compactedSize = uint64(len(t.CPU.Nodes)) * bvh.NodeSize
	t.state = AccelBuilt
	return nil
}

// Compact copies the tight node range into a fresh final buffer and
// releases the scratch.
func (t *TLASAccel) Compact(ctx *Context) error {
	if err := t.requireState(AccelBuilt, "compact"); err != nil {
		return err
	}

	final, err := ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "TLASNodes",
		Size:  t.compactedSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		t.releaseScratch()
		return fmt.Errorf("%w: tlas %s final alloc: %v", ErrAccelBuild, t.ID, err)
	}

	err = ctx.Submit("TLASCompact", func(enc *wgpu.CommandEncoder) error {
		return enc.CopyBufferToBuffer(t.scratch, 0, final, 0, t.compactedSize)
	})
	t.releaseScratch()
	if err != nil {
		final.Release()
		return fmt.Errorf("%w: tlas %s compact: %v", ErrAccelBuild, t.ID, err)
	}

	t.Buffer = final
	t.state = AccelCompacted
	return nil
}

func (t *TLASAccel) Release() {
	t.releaseScratch()
	if t.Buffer != nil {
		t.Buffer.Release()
		t.Buffer = nil
	}
}

// accelArena sizes one shared buffer holding every compacted BLAS, so
// the kernel reaches any mesh's nodes and primitives through a single
// binding plus per-mesh offsets from the mesh argument table.
type accelArena struct {
	Buffer *wgpu.Buffer
	Total  uint64
}

// planArena assigns arena spans for a set of built BLAS structures.
// Spans are tight; the invariant compacted <= built holds per mesh.
func planArena(blas []*BLASAccel) (total uint64, nodes, prims []Span) {
	var cursor uint64
	nodes = make([]Span, len(blas))
	prims = make([]Span, len(blas))
	for i, b := range blas {
		tn, tp := b.tightSize()
		nodes[i] = Span{Offset: cursor, Size: tn}
		cursor += tn
		prims[i] = Span{Offset: cursor, Size: tp}
		cursor += tp
	}
	return cursor, nodes, prims
}

func newAccelArena(ctx *Context, total uint64) (*accelArena, error) {
	if total == 0 {
		total = bvh.NodeSize
	}
	buf, err := ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "AccelArena",
		Size:  total,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: accel arena: %v", ErrAccelBuild, err)
	}
	return &accelArena{Buffer: buf, Total: total}, nil
}

func (a *accelArena) Release() {
	if a.Buffer != nil {
		a.Buffer.Release()
		a.Buffer = nil
	}
}
