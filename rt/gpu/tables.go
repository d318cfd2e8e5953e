package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/meshrt/rt/core"
)

// The four argument table layouts. Field order here is the wire order;
// the WGSL record structs in rt/shaders mirror these exactly.
var (
	instanceTableLayout = NewTableLayout("InstanceTable",
		Field{"inv_transform", FieldMat4},
		Field{"material_ids", FieldRef},
		Field{"mesh_index", FieldU32},
		Field{"pad0", FieldU32},
		Field{"pad1", FieldU32},
	)

	meshTableLayout = NewTableLayout("MeshTable",
		Field{"geometry_ids", FieldRef},
		Field{"geom_count", FieldU32},
		Field{"first_geom", FieldU32},
		Field{"blas_nodes", FieldU32}, // word offset into the accel arena
		Field{"blas_prims", FieldU32},
		Field{"pad0", FieldU32},
	)

	geometryTableLayout = NewTableLayout("GeometryTable",
		Field{"vertices", FieldRef},
		Field{"indices", FieldRef},
		Field{"normals", FieldRef},
		Field{"uvs", FieldRef},
		Field{"vertex_count", FieldU32},
		Field{"triangle_count", FieldU32},
	)

	textureTableLayout = NewTableLayout("TextureTable",
		Field{"pixels", FieldRef},
		Field{"width", FieldU32},
		Field{"height", FieldU32},
		Field{"flags", FieldU32}, // bit 0: sRGB pixel data
	)
)

const texFlagSRGB = 1

// materialStride is the per-record size of the material parameter
// buffer: a base-color vec4 plus a vec4<u32> info word.
const materialStride = 32

// instanceInverse computes the world->object transform for one
// instance. Singular placements have no inverse and are refused before
// any table is written.
func instanceInverse(m mgl32.Mat4) (mgl32.Mat4, error) {
	if m.Det() == 0 {
		return mgl32.Mat4{}, fmt.Errorf("transform is singular")
	}
	return m.Inv(), nil
}

// packMaterials writes one record per material: rgb base color, then
// the texture id in an integer lane (NoRef for untextured) so float
// loads can never canonicalize the bits.
func packMaterials(mats []core.Material) []byte {
	data := make([]byte, materialStride*len(mats))
	for i := range mats {
		m := &mats[i]
		off := i * materialStride
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(m.BaseColor.X()))
		binary.LittleEndian.PutUint32(data[off+4:], math.Float32bits(m.BaseColor.Y()))
		binary.LittleEndian.PutUint32(data[off+8:], math.Float32bits(m.BaseColor.Z()))
		binary.LittleEndian.PutUint32(data[off+12:], math.Float32bits(1))

		tex := NoRef
		if m.TextureID >= 0 {
			tex = uint32(m.TextureID)
		}
		binary.LittleEndian.PutUint32(data[off+16:], tex)
	}
	return data
}

// sceneTables holds the built per-scene indirection tables plus the
// material parameter buffer the kernel shades with.
type sceneTables struct {
	Instance *Table
	Mesh     *Table
	Geometry *Table
	Texture  *Table

	Materials     *wgpu.Buffer
	materialsSize uint64
}

func (t *sceneTables) Release() {
	for _, tb := range []*Table{t.Instance, t.Mesh, t.Geometry, t.Texture} {
		if tb != nil {
			tb.Release()
		}
	}
	if t.Materials != nil {
		t.Materials.Release()
		t.Materials = nil
	}
}

// buildSceneTables writes one record per entity, in the same order the
// heap layout enumerated them, so a single integer index locates all of
// an entity's metadata across tables.
func buildSceneTables(ctx *Context, scene *core.Scene, layout *HeapLayout, blas []*BLASAccel) (*sceneTables, error) {
	out := &sceneTables{}
	fail := func(err error) (*sceneTables, error) {
		out.Release()
		return nil, err
	}

	// Instance table. The inverse transform is computed here, not taken
	// from the scene: the kernel needs world->object rays and the
	// traversal structures only carry the forward transform.
	var instErr error
	inst, err := BuildTable(ctx, instanceTableLayout, len(scene.Instances), func(i int, rec *Record) {
		inv, ierr := instanceInverse(scene.Instances[i].Transform)
		if ierr != nil {
			instErr = fmt.Errorf("%w: instance %d: %v", ErrAccelBuild, i, ierr)
			return
		}
		rec.SetMat4(0, inv)
		rec.SetRef(1, layout.MaterialIDs[i])
		rec.SetU32(2, uint32(scene.Instances[i].MeshIndex))
	})
	if err != nil {
		return fail(err)
	}
	if instErr != nil {
		inst.Release()
		return fail(instErr)
	}
	out.Instance = inst

	// Mesh table: geometry-id buffer pointer plus where the mesh's
	// compacted structure lives in the accel arena.
	out.Mesh, err = BuildTable(ctx, meshTableLayout, len(scene.Meshes), func(i int, rec *Record) {
		ml := &layout.Meshes[i]
		rec.SetRef(0, ml.GeometryIDs)
		rec.SetU32(1, ml.GeomCount)
		rec.SetU32(2, ml.FirstGeom)
		rec.SetU32(3, uint32(blas[i].NodesSpan.Offset/4))
		rec.SetU32(4, uint32(blas[i].PrimsSpan.Offset/4))
	})
	if err != nil {
		return fail(err)
	}

	// Geometry table, global geometry order.
	out.Geometry, err = BuildTable(ctx, geometryTableLayout, len(layout.Geometries), func(i int, rec *Record) {
		gl := &layout.Geometries[i]
		rec.SetRef(0, gl.Vertices)
		rec.SetRef(1, gl.Indices)
		rec.SetRef(2, gl.Normals)
		rec.SetRef(3, gl.UVs)
		rec.SetU32(4, gl.VertexCount)
		rec.SetU32(5, gl.TriangleCount)
	})
	if err != nil {
		return fail(err)
	}

	// Texture table.
	out.Texture, err = BuildTable(ctx, textureTableLayout, len(scene.Textures), func(i int, rec *Record) {
		t := &scene.Textures[i]
		rec.SetRef(0, layout.Textures[i])
		rec.SetU32(1, uint32(t.Width))
		rec.SetU32(2, uint32(t.Height))
		flags := uint32(0)
		if t.ColorSpace == core.ColorSpaceSRGB {
			flags |= texFlagSRGB
		}
		rec.SetU32(3, flags)
	})
	if err != nil {
		return fail(err)
	}

	// Material parameters.
	matData := packMaterials(scene.Materials)
	if len(matData) == 0 {
		matData = make([]byte, materialStride)
	}
	out.Materials, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "MaterialParams",
		Size:  uint64(len(matData)),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fail(fmt.Errorf("gpu: material params: %w", err))
	}
	out.materialsSize = uint64(len(matData))
	ctx.Queue.WriteBuffer(out.Materials, 0, matData)

	return out, nil
}
