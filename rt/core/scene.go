package core

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Geometry is one batch of triangles sharing a vertex layout.
// Normals and UVs are optional; when present they are per-vertex.
type Geometry struct {
	Vertices []mgl32.Vec3
	Indices  []uint32 // 3 per triangle
	Normals  []mgl32.Vec3
	UVs      []mgl32.Vec2
}

func (g *Geometry) TriangleCount() int { return len(g.Indices) / 3 }

func (g *Geometry) HasNormals() bool { return len(g.Normals) > 0 }
func (g *Geometry) HasUVs() bool     { return len(g.UVs) > 0 }

// AABB returns the object-space bounds of the geometry.
func (g *Geometry) AABB() (mgl32.Vec3, mgl32.Vec3) {
	inf := float32(1e30)
	minB := mgl32.Vec3{inf, inf, inf}
	maxB := mgl32.Vec3{-inf, -inf, -inf}
	for _, v := range g.Vertices {
		minB = mgl32.Vec3{min(minB.X(), v.X()), min(minB.Y(), v.Y()), min(minB.Z(), v.Z())}
		maxB = mgl32.Vec3{max(maxB.X(), v.X()), max(maxB.Y(), v.Y()), max(maxB.Z(), v.Z())}
	}
	return minB, maxB
}

// Mesh is an ordered sequence of geometries. One mesh maps to one
// bottom-level acceleration structure.
type Mesh struct {
	Geometries []Geometry
}

func (m *Mesh) TriangleCount() int {
	n := 0
	for i := range m.Geometries {
		n += m.Geometries[i].TriangleCount()
	}
	return n
}

// AABB returns the object-space bounds over all geometries.
func (m *Mesh) AABB() (mgl32.Vec3, mgl32.Vec3) {
	inf := float32(1e30)
	minB := mgl32.Vec3{inf, inf, inf}
	maxB := mgl32.Vec3{-inf, -inf, -inf}
	for i := range m.Geometries {
		gMin, gMax := m.Geometries[i].AABB()
		minB = mgl32.Vec3{min(minB.X(), gMin.X()), min(minB.Y(), gMin.Y()), min(minB.Z(), gMin.Z())}
		maxB = mgl32.Vec3{max(maxB.X(), gMax.X()), max(maxB.Y(), gMax.Y()), max(maxB.Z(), gMax.Z())}
	}
	return minB, maxB
}

// Instance places a mesh in the world. MaterialIDs holds one material
// index per geometry of the referenced mesh.
type Instance struct {
	Transform   mgl32.Mat4
	MeshIndex   int
	MaterialIDs []uint32
}

// WorldAABB conservatively transforms the mesh bounds by the instance
// transform (corner transform, same approach as a rigid AABB refit).
func (in *Instance) WorldAABB(mesh *Mesh) (mgl32.Vec3, mgl32.Vec3) {
	lMin, lMax := mesh.AABB()
	corners := [8]mgl32.Vec3{
		{lMin.X(), lMin.Y(), lMin.Z()},
		{lMax.X(), lMin.Y(), lMin.Z()},
		{lMin.X(), lMax.Y(), lMin.Z()},
		{lMax.X(), lMax.Y(), lMin.Z()},
		{lMin.X(), lMin.Y(), lMax.Z()},
		{lMax.X(), lMin.Y(), lMax.Z()},
		{lMin.X(), lMax.Y(), lMax.Z()},
		{lMax.X(), lMax.Y(), lMax.Z()},
	}
	inf := float32(1e30)
	wMin := mgl32.Vec3{inf, inf, inf}
	wMax := mgl32.Vec3{-inf, -inf, -inf}
	for _, c := range corners {
		wc := in.Transform.Mul4x1(c.Vec4(1.0)).Vec3()
		wMin = mgl32.Vec3{min(wMin.X(), wc.X()), min(wMin.Y(), wc.Y()), min(wMin.Z(), wc.Z())}
		wMax = mgl32.Vec3{max(wMax.X(), wc.X()), max(wMax.Y(), wc.Y()), max(wMax.Z(), wc.Z())}
	}
	return wMin, wMax
}

// Scene is the immutable input to the renderer. The caller owns it; the
// upload pipeline only reads it.
type Scene struct {
	ID        uuid.UUID
	Meshes    []Mesh
	Instances []Instance
	Materials []Material
	Textures  []Texture
}

func NewScene() *Scene {
	return &Scene{ID: uuid.New()}
}

// GeometryCount is the total geometry count across all meshes. Each
// geometry gets a globally unique index in scene order.
func (s *Scene) GeometryCount() int {
	n := 0
	for i := range s.Meshes {
		n += len(s.Meshes[i].Geometries)
	}
	return n
}

// Validate checks the cross-references that the upload pipeline relies on.
func (s *Scene) Validate() error {
	if len(s.Meshes) == 0 {
		return fmt.Errorf("scene %s: no meshes", s.ID)
	}
	if len(s.Instances) == 0 {
		return fmt.Errorf("scene %s: no instances", s.ID)
	}
	for mi := range s.Meshes {
		mesh := &s.Meshes[mi]
		if len(mesh.Geometries) == 0 {
			return fmt.Errorf("scene %s: mesh %d has no geometries", s.ID, mi)
		}
		for gi := range mesh.Geometries {
			g := &mesh.Geometries[gi]
			if len(g.Vertices) == 0 || len(g.Indices) == 0 {
				return fmt.Errorf("scene %s: mesh %d geometry %d is empty", s.ID, mi, gi)
			}
			if len(g.Indices)%3 != 0 {
				return fmt.Errorf("scene %s: mesh %d geometry %d index count %d not divisible by 3", s.ID, mi, gi, len(g.Indices))
			}
			for _, idx := range g.Indices {
				if int(idx) >= len(g.Vertices) {
					return fmt.Errorf("scene %s: mesh %d geometry %d index %d out of range", s.ID, mi, gi, idx)
				}
			}
			if g.HasNormals() && len(g.Normals) != len(g.Vertices) {
				return fmt.Errorf("scene %s: mesh %d geometry %d normal count mismatch", s.ID, mi, gi)
			}
			if g.HasUVs() && len(g.UVs) != len(g.Vertices) {
				return fmt.Errorf("scene %s: mesh %d geometry %d uv count mismatch", s.ID, mi, gi)
			}
		}
	}
	for ii := range s.Instances {
		in := &s.Instances[ii]
		if in.MeshIndex < 0 || in.MeshIndex >= len(s.Meshes) {
			return fmt.Errorf("scene %s: instance %d references mesh %d of %d", s.ID, ii, in.MeshIndex, len(s.Meshes))
		}
		if len(in.MaterialIDs) != len(s.Meshes[in.MeshIndex].Geometries) {
			return fmt.Errorf("scene %s: instance %d has %d material ids for %d geometries",
				s.ID, ii, len(in.MaterialIDs), len(s.Meshes[in.MeshIndex].Geometries))
		}
		for _, mid := range in.MaterialIDs {
			if int(mid) >= len(s.Materials) {
				return fmt.Errorf("scene %s: instance %d material id %d out of range", s.ID, ii, mid)
			}
		}
	}
	for ti := range s.Textures {
		t := &s.Textures[ti]
		if t.Width < 1 || t.Height < 1 {
			return fmt.Errorf("scene %s: texture %d has empty dimensions %dx%d", s.ID, ti, t.Width, t.Height)
		}
		if len(t.Pixels) != t.Width*t.Height*4 {
			return fmt.Errorf("scene %s: texture %d pixel size %d != %dx%dx4", s.ID, ti, len(t.Pixels), t.Width, t.Height)
		}
	}
	for mi := range s.Materials {
		if tid := s.Materials[mi].TextureID; tid >= 0 && int(tid) >= len(s.Textures) {
			return fmt.Errorf("scene %s: material %d texture id %d out of range", s.ID, mi, tid)
		}
	}
	return nil
}

func min(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
func max(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
