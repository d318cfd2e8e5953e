package bvh

import (
	"errors"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/meshrt/rt/core"
)

// ErrNoPrimitives is returned when a build has nothing to partition.
var ErrNoPrimitives = errors.New("bvh: no primitives to build over")

// leafMax is the primitive cutoff below which a subtree becomes a leaf.
const leafMax = 4

type item struct {
	Min      mgl32.Vec3
	Max      mgl32.Vec3
	Centroid mgl32.Vec3
	Prim     Primitive
	Index    int // TLAS: instance index
}

// BLAS is the CPU form of a bottom-level structure: flat nodes whose
// leaves index into Prims.
type BLAS struct {
	Nodes []Node
	Prims []Primitive
}

// TLAS is the CPU form of the top-level structure; leaves reference
// instance indices directly.
type TLAS struct {
	Nodes []Node
}

// WorstCaseNodes is the node bound for a binary BVH over n primitives,
// used to size scratch memory before the true size is known.
func WorstCaseNodes(n int) int {
	if n < 1 {
		n = 1
	}
	return 2*n - 1
}

// BuildBLAS builds one structure over all triangles of the mesh's
// geometries. Prims come out in leaf-contiguous order so leaves address
// a [first, first+count) range.
func BuildBLAS(geometries []core.Geometry) (*BLAS, error) {
	items := []item{}
	for gi := range geometries {
		g := &geometries[gi]
		for t := 0; t < g.TriangleCount(); t++ {
			v0 := g.Vertices[g.Indices[t*3]]
			v1 := g.Vertices[g.Indices[t*3+1]]
			v2 := g.Vertices[g.Indices[t*3+2]]
			minB := mgl32.Vec3{
				minf(v0.X(), minf(v1.X(), v2.X())),
				minf(v0.Y(), minf(v1.Y(), v2.Y())),
				minf(v0.Z(), minf(v1.Z(), v2.Z())),
			}
			maxB := mgl32.Vec3{
				maxf(v0.X(), maxf(v1.X(), v2.X())),
				maxf(v0.Y(), maxf(v1.Y(), v2.Y())),
				maxf(v0.Z(), maxf(v1.Z(), v2.Z())),
			}
			items = append(items, item{
				Min:      minB,
				Max:      maxB,
				Centroid: minB.Add(maxB).Mul(0.5),
				Prim:     Primitive{Geom: uint32(gi), Tri: uint32(t)},
			})
		}
	}
	if len(items) == 0 {
		return nil, ErrNoPrimitives
	}

	b := &BLAS{Prims: make([]Primitive, 0, len(items))}
	recursiveBuild(items, &b.Nodes, func(leaf []item) (int32, int32) {
		first := int32(len(b.Prims))
		for _, it := range leaf {
			b.Prims = append(b.Prims, it.Prim)
		}
		return first, int32(len(leaf))
	})
	return b, nil
}

// BuildTLAS builds the top-level structure over per-instance world AABBs.
// Leaves hold instance indices; leaf size is 1 so the traversal maps a
// hit directly back to one instance.
func BuildTLAS(aabbs [][2]mgl32.Vec3) (*TLAS, error) {
	if len(aabbs) == 0 {
		return nil, ErrNoPrimitives
	}

	items := make([]item, len(aabbs))
	for i, bounds := range aabbs {
		if bounds[0].X() > bounds[1].X() || bounds[0].Y() > bounds[1].Y() || bounds[0].Z() > bounds[1].Z() {
			return nil, errors.New("bvh: degenerate instance bounds")
		}
		items[i] = item{
			Min:      bounds[0],
			Max:      bounds[1],
			Centroid: bounds[0].Add(bounds[1]).Mul(0.5),
			Index:    i,
		}
	}

	t := &TLAS{}
	recursiveBuildN(items, &t.Nodes, 1, func(leaf []item) (int32, int32) {
		return int32(leaf[0].Index), 1
	})
	return t, nil
}

func recursiveBuild(items []item, nodes *[]Node, emit func([]item) (int32, int32)) int32 {
	return recursiveBuildN(items, nodes, leafMax, emit)
}

func recursiveBuildN(items []item, nodes *[]Node, leafSize int, emit func([]item) (int32, int32)) int32 {
	idx := int32(len(*nodes))
	*nodes = append(*nodes, Node{Left: -1, Right: -1, LeafFirst: -1, LeafCount: 0})

	minB := mgl32.Vec3{float32(math.Inf(1)), float32(math.Inf(1)), float32(math.Inf(1))}
	maxB := mgl32.Vec3{float32(math.Inf(-1)), float32(math.Inf(-1)), float32(math.Inf(-1))}
	for _, it := range items {
		minB = mgl32.Vec3{minf(minB.X(), it.Min.X()), minf(minB.Y(), it.Min.Y()), minf(minB.Z(), it.Min.Z())}
		maxB = mgl32.Vec3{maxf(maxB.X(), it.Max.X()), maxf(maxB.Y(), it.Max.Y()), maxf(maxB.Z(), it.Max.Z())}
	}
	(*nodes)[idx].Min = minB
	(*nodes)[idx].Max = maxB

	if len(items) <= leafSize {
		first, count := emit(items)
		(*nodes)[idx].LeafFirst = first
		(*nodes)[idx].LeafCount = count
		return idx
	}

	extent := maxB.Sub(minB)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Centroid[axis] < items[j].Centroid[axis]
	})

	mid := len(items) / 2
	left := recursiveBuildN(items[:mid], nodes, leafSize, emit)
	right := recursiveBuildN(items[mid:], nodes, leafSize, emit)
	(*nodes)[idx].Left = left
	(*nodes)[idx].Right = right
	return idx
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
