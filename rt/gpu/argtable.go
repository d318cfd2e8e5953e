package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// NoRef is the encoded form of an absent buffer/texture reference.
const NoRef = uint32(0xFFFFFFFF)

// FieldKind describes one field of an argument record: either an inline
// constant or an opaque reference resolved through the heap.
type FieldKind int

const (
	FieldU32 FieldKind = iota // inline 32-bit constant
	FieldF32
	FieldVec4 // inline vec4 constant, 16-byte aligned
	FieldMat4 // inline column-major mat4
	FieldRef  // reference to a heap-resident buffer or texture block
)

func (k FieldKind) size() uint32 {
	switch k {
	case FieldVec4:
		return 16
	case FieldMat4:
		return 64
	default:
		return 4
	}
}

func (k FieldKind) align() uint32 {
	switch k {
	case FieldVec4, FieldMat4:
		return 16
	default:
		return 4
	}
}

// Field is one named slot in a table layout.
type Field struct {
	Name string
	Kind FieldKind
}

// TableLayout is the declared ordered field list of one argument table.
// The record stride is recomputed from the fields at construction,
// following WGSL storage-buffer alignment rules so records can be read
// as an array of structs by the kernel.
type TableLayout struct {
	name    string
	fields  []Field
	offsets []uint32
	stride  uint32
}

func NewTableLayout(name string, fields ...Field) *TableLayout {
	l := &TableLayout{name: name, fields: fields, offsets: make([]uint32, len(fields))}
	var cursor, structAlign uint32 = 0, 4
	for i, f := range fields {
		a := f.Kind.align()
		if a > structAlign {
			structAlign = a
		}
		cursor = alignU32(cursor, a)
		l.offsets[i] = cursor
		cursor += f.Kind.size()
	}
	l.stride = alignU32(cursor, structAlign)
	return l
}

// Stride is the fixed per-record byte size.
func (l *TableLayout) Stride() uint32 { return l.stride }

// Record is a writer over one record's bytes. Field indices follow the
// layout's declaration order; kind mismatches are programmer errors and
// panic.
type Record struct {
	layout *TableLayout
	data   []byte
}

func (r *Record) field(i int, want FieldKind) []byte {
	f := r.layout.fields[i]
	if f.Kind != want && !(want == FieldU32 && f.Kind == FieldRef) {
		panic(fmt.Sprintf("argtable %s: field %q is %d, written as %d", r.layout.name, f.Name, f.Kind, want))
	}
	off := r.layout.offsets[i]
	return r.data[off : off+f.Kind.size()]
}

func (r *Record) SetU32(i int, v uint32) {
	binary.LittleEndian.PutUint32(r.field(i, FieldU32), v)
}

func (r *Record) SetF32(i int, v float32) {
	binary.LittleEndian.PutUint32(r.field(i, FieldF32), math.Float32bits(v))
}

func (r *Record) SetVec4(i int, v mgl32.Vec4) {
	b := r.field(i, FieldVec4)
	for c := 0; c < 4; c++ {
		binary.LittleEndian.PutUint32(b[c*4:], math.Float32bits(v[c]))
	}
}

func (r *Record) SetMat4(i int, m mgl32.Mat4) {
	b := r.field(i, FieldMat4)
	for c := 0; c < 16; c++ {
		binary.LittleEndian.PutUint32(b[c*4:], math.Float32bits(m[c]))
	}
}

// SetRef encodes a heap span as an opaque reference: the span's word
// index into the heap array. Invalid spans encode as NoRef.
func (r *Record) SetRef(i int, s Span) {
	v := NoRef
	if s.Valid() {
		v = uint32(s.Offset / 4)
	}
	binary.LittleEndian.PutUint32(r.field(i, FieldRef), v)
}

// Table is one built argument table: a flat index-addressed buffer of
// fixed-stride records.
type Table struct {
	Layout *TableLayout
	Count  int
	Buffer *wgpu.Buffer

	size uint64
}

// Size is the logical table size: stride x count, zero for an empty
// table. Empty tables still hold a one-stride device allocation because
// wgpu cannot bind zero-sized buffers.
func (t *Table) Size() uint64 { return t.size }

func (t *Table) Release() {
	if t.Buffer != nil {
		t.Buffer.Release()
		t.Buffer = nil
	}
}

// BuildTable allocates stride x count bytes, invokes write once per
// record in entity-enumeration order, then flushes the whole buffer in
// one write. Records never touch the device individually.
func BuildTable(ctx *Context, layout *TableLayout, count int, write func(i int, rec *Record)) (*Table, error) {
	stride := layout.Stride()
	size := uint64(stride) * uint64(count)
	allocSize := size
	if allocSize == 0 {
		allocSize = uint64(stride) // empty table still binds
	}

	buf, err := ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: layout.name,
		Size:  allocSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: argtable %s: %w", layout.name, err)
	}

	data := make([]byte, allocSize)
	rec := Record{layout: layout}
	for i := 0; i < count; i++ {
		rec.data = data[uint64(i)*uint64(stride) : uint64(i+1)*uint64(stride)]
		write(i, &rec)
	}

	// Single flush after all records are written.
	ctx.Queue.WriteBuffer(buf, 0, data)

	return &Table{Layout: layout, Count: count, Buffer: buf, size: size}, nil
}

func alignU32(n, a uint32) uint32 {
	if n%a != 0 {
		n += a - n%a
	}
	return n
}
