package bvh

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/meshrt/rt/core"
)

func quadGeometry() core.Geometry {
	return core.Geometry{
		Vertices: []mgl32.Vec3{
			{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestTLASTwoInstancesSplit(t *testing.T) {
	// Two instances far apart on X.
	aabbs := [][2]mgl32.Vec3{
		{{-100, -1, -1}, {-98, 1, 1}},
		{{100, -1, -1}, {102, 1, 1}},
	}

	tlas, err := BuildTLAS(aabbs)
	require.NoError(t, err)
	require.Len(t, tlas.Nodes, 3)

	data := SerializeNodes(tlas.Nodes)
	if len(data) != NodeSize*3 {
		t.Fatalf("expected %d bytes (3 nodes), got %d", NodeSize*3, len(data))
	}

	// Root AABB encompasses both objects.
	rootMinX := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	rootMaxX := math.Float32frombits(binary.LittleEndian.Uint32(data[16:20]))
	if rootMinX > -100 {
		t.Errorf("root min X should be <= -100, got %f", rootMinX)
	}
	if rootMaxX < 100 {
		t.Errorf("root max X should be >= 100, got %f", rootMaxX)
	}

	// Interior root, two single-instance leaves.
	root := tlas.Nodes[0]
	require.False(t, root.IsLeaf())
	left := tlas.Nodes[root.Left]
	right := tlas.Nodes[root.Right]
	require.True(t, left.IsLeaf())
	require.True(t, right.IsLeaf())
	leaves := map[int32]bool{left.LeafFirst: true, right.LeafFirst: true}
	assert.True(t, leaves[0] && leaves[1], "leaves must cover both instances")
}

func TestTLASDegenerateBounds(t *testing.T) {
	_, err := BuildTLAS([][2]mgl32.Vec3{{{1, 0, 0}, {-1, 0, 0}}})
	require.Error(t, err)

	_, err = BuildTLAS(nil)
	require.ErrorIs(t, err, ErrNoPrimitives)
}

func TestBLASQuad(t *testing.T) {
	blas, err := BuildBLAS([]core.Geometry{quadGeometry()})
	require.NoError(t, err)

	// 2 triangles fit a single leaf.
	require.Len(t, blas.Prims, 2)
	require.Len(t, blas.Nodes, 1)
	root := blas.Nodes[0]
	require.True(t, root.IsLeaf())
	assert.Equal(t, int32(0), root.LeafFirst)
	assert.Equal(t, int32(2), root.LeafCount)

	assert.Equal(t, mgl32.Vec3{-1, -1, 0}, root.Min)
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, root.Max)
}

func TestBLASMultiGeometryPrimOrder(t *testing.T) {
	g0 := quadGeometry()
	g1 := quadGeometry()
	for i := range g1.Vertices {
		g1.Vertices[i] = g1.Vertices[i].Add(mgl32.Vec3{10, 0, 0})
	}

	blas, err := BuildBLAS([]core.Geometry{g0, g1})
	require.NoError(t, err)
	require.Len(t, blas.Prims, 4)

	// Every primitive carries its local geometry and a valid triangle.
	seen := map[uint32]int{}
	for _, p := range blas.Prims {
		require.Less(t, p.Geom, uint32(2))
		require.Less(t, p.Tri, uint32(2))
		seen[p.Geom]++
	}
	assert.Equal(t, 2, seen[0])
	assert.Equal(t, 2, seen[1])

	// Leaves address contiguous primitive ranges covering everything.
	covered := make([]bool, len(blas.Prims))
	for _, n := range blas.Nodes {
		if !n.IsLeaf() {
			continue
		}
		for k := int32(0); k < n.LeafCount; k++ {
			covered[n.LeafFirst+k] = true
		}
	}
	for i, c := range covered {
		require.True(t, c, "prim %d not reachable from any leaf", i)
	}
}

func TestBLASEmpty(t *testing.T) {
	_, err := BuildBLAS(nil)
	require.ErrorIs(t, err, ErrNoPrimitives)
}

func TestCompactionNeverGrows(t *testing.T) {
	// The serialized size of any build never exceeds the worst-case
	// scratch bound used before the true size is known.
	for _, tris := range []int{1, 2, 7, 64, 501} {
		g := core.Geometry{}
		for i := 0; i < tris; i++ {
			base := uint32(len(g.Vertices))
			f := float32(i)
			g.Vertices = append(g.Vertices,
				mgl32.Vec3{f, 0, 0}, mgl32.Vec3{f + 1, 0, 0}, mgl32.Vec3{f, 1, 0})
			g.Indices = append(g.Indices, base, base+1, base+2)
		}

		blas, err := BuildBLAS([]core.Geometry{g})
		require.NoError(t, err)
		built := WorstCaseNodes(tris) * NodeSize
		compacted := len(blas.Nodes) * NodeSize
		assert.LessOrEqual(t, compacted, built, "%d triangles", tris)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	n := Node{
		Min: mgl32.Vec3{-1, -2, -3}, Max: mgl32.Vec3{4, 5, 6},
		Left: 7, Right: 8, LeafFirst: -1, LeafCount: 0,
	}
	data := SerializeNodes([]Node{n})
	require.Len(t, data, NodeSize)

	assert.Equal(t, float32(-2), math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])))
	assert.Equal(t, float32(6), math.Float32frombits(binary.LittleEndian.Uint32(data[24:28])))
	assert.Equal(t, int32(7), int32(binary.LittleEndian.Uint32(data[32:36])))
	assert.Equal(t, int32(-1), int32(binary.LittleEndian.Uint32(data[40:44])))

	prims := SerializePrimitives([]Primitive{{Geom: 3, Tri: 9}})
	require.Len(t, prims, PrimitiveSize)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(prims[0:4]))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(prims[4:8]))
}
