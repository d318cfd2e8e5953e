package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/meshrt/rt/core"
)

// heapUploadRegions packs every scene buffer into staging regions
// addressed by the heap layout, in the same enumeration order the
// layout was computed in. The geometry-id buffers carry a global
// running counter across all meshes so a per-triangle hit resolves to
// a globally unique geometry index.
func heapUploadRegions(scene *core.Scene, layout *HeapLayout) []stagingRegion {
	regions := make([]stagingRegion, 0, len(layout.Geometries)*4+len(layout.Meshes)+len(layout.MaterialIDs)+len(layout.Textures))

	geomGlobal := uint32(0)
	gi := 0
	for mi := range scene.Meshes {
		mesh := &scene.Meshes[mi]

		ids := make([]uint32, len(mesh.Geometries))
		for k := range ids {
			ids[k] = geomGlobal
			geomGlobal++
		}
		regions = append(regions, stagingRegion{
			dstOffset: layout.Meshes[mi].GeometryIDs.Offset,
			data:      packU32s(ids),
		})

		for g := range mesh.Geometries {
			geom := &mesh.Geometries[g]
			gl := &layout.Geometries[gi]
			gi++

			regions = append(regions,
				stagingRegion{dstOffset: gl.Vertices.Offset, data: packVec3s(geom.Vertices)},
				stagingRegion{dstOffset: gl.Indices.Offset, data: packU32s(geom.Indices)},
			)
			if gl.Normals.Valid() {
				regions = append(regions, stagingRegion{dstOffset: gl.Normals.Offset, data: packVec3s(geom.Normals)})
			}
			if gl.UVs.Valid() {
				regions = append(regions, stagingRegion{dstOffset: gl.UVs.Offset, data: packVec2s(geom.UVs)})
			}
		}
	}

	for ii := range scene.Instances {
		regions = append(regions, stagingRegion{
			dstOffset: layout.MaterialIDs[ii].Offset,
			data:      packU32s(scene.Instances[ii].MaterialIDs),
		})
	}

	for ti := range scene.Textures {
		regions = append(regions, stagingRegion{
			dstOffset: layout.Textures[ti].Offset,
			data:      scene.Textures[ti].Pixels,
		})
	}

	return regions
}

func packVec3s(vs []mgl32.Vec3) []byte {
	buf := make([]byte, len(vs)*12)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*12:], math.Float32bits(v.X()))
		binary.LittleEndian.PutUint32(buf[i*12+4:], math.Float32bits(v.Y()))
		binary.LittleEndian.PutUint32(buf[i*12+8:], math.Float32bits(v.Z()))
	}
	return buf
}

func packVec2s(vs []mgl32.Vec2) []byte {
	buf := make([]byte, len(vs)*8)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(v.X()))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(v.Y()))
	}
	return buf
}

func packU32s(vs []uint32) []byte {
	buf := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}
