package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScene() *Scene {
	s := NewScene()
	s.Meshes = []Mesh{{Geometries: []Geometry{{
		Vertices: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Indices:  []uint32{0, 1, 2},
	}}}}
	s.Instances = []Instance{{Transform: mgl32.Ident4(), MeshIndex: 0, MaterialIDs: []uint32{0}}}
	s.Materials = []Material{{BaseColor: mgl32.Vec3{1, 1, 1}, TextureID: -1}}
	return s
}

func TestSceneValidateOK(t *testing.T) {
	require.NoError(t, validScene().Validate())
}

func TestSceneValidateRejects(t *testing.T) {
	cases := map[string]func(*Scene){
		"no meshes":             func(s *Scene) { s.Meshes = nil },
		"no instances":          func(s *Scene) { s.Instances = nil },
		"empty geometry":        func(s *Scene) { s.Meshes[0].Geometries[0].Vertices = nil },
		"ragged indices":        func(s *Scene) { s.Meshes[0].Geometries[0].Indices = []uint32{0, 1} },
		"index out of range":    func(s *Scene) { s.Meshes[0].Geometries[0].Indices = []uint32{0, 1, 9} },
		"mesh index range":      func(s *Scene) { s.Instances[0].MeshIndex = 5 },
		"material count":        func(s *Scene) { s.Instances[0].MaterialIDs = []uint32{0, 0} },
		"material id range":     func(s *Scene) { s.Instances[0].MaterialIDs = []uint32{7} },
		"normal count mismatch": func(s *Scene) { s.Meshes[0].Geometries[0].Normals = []mgl32.Vec3{{0, 0, 1}} },
		"texture pixel size":    func(s *Scene) { s.Textures = []Texture{{Width: 2, Height: 2, Pixels: []byte{0}}} },
		"zero-size texture":     func(s *Scene) { s.Textures = []Texture{{Width: 0, Height: 0}} },
		"texture id range":      func(s *Scene) { s.Materials[0].TextureID = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := validScene()
			mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestGeometryCount(t *testing.T) {
	s := validScene()
	s.Meshes = append(s.Meshes, Mesh{Geometries: make([]Geometry, 3)})
	assert.Equal(t, 4, s.GeometryCount())
}

func TestInstanceWorldAABBTranslation(t *testing.T) {
	mesh := &Mesh{Geometries: []Geometry{{
		Vertices: []mgl32.Vec3{{-1, -1, -1}, {1, 1, 1}},
		Indices:  []uint32{0, 1, 0},
	}}}
	in := Instance{Transform: mgl32.Translate3D(10, 0, 0)}

	wMin, wMax := in.WorldAABB(mesh)
	assert.Equal(t, mgl32.Vec3{9, -1, -1}, wMin)
	assert.Equal(t, mgl32.Vec3{11, 1, 1}, wMax)
}

func TestInstanceWorldAABBRotationIsConservative(t *testing.T) {
	mesh := &Mesh{Geometries: []Geometry{{
		Vertices: []mgl32.Vec3{{-1, -1, -1}, {1, 1, 1}},
		Indices:  []uint32{0, 1, 0},
	}}}
	in := Instance{Transform: mgl32.HomogRotate3DZ(mgl32.DegToRad(45))}

	// A rotated unit cube still fits inside the transformed-corner
	// bounds; the bounds grow, never shrink.
	wMin, wMax := in.WorldAABB(mesh)
	r := float32(1.4142135)
	assert.InDelta(t, -r, wMin.X(), 1e-4)
	assert.InDelta(t, r, wMax.X(), 1e-4)
	assert.InDelta(t, -1, wMin.Z(), 1e-5)
	assert.InDelta(t, 1, wMax.Z(), 1e-5)
}
