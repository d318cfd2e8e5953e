package bvh

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Matches WGSL BVHNode
// struct BVHNode {
//    aabb_min : vec4<f32>; (16)
//    aabb_max : vec4<f32>; (16)
//    left : i32; (4)
//    right : i32; (4)
//    leaf_first : i32; (4)
//    leaf_count : i32; (4)
//    padding : i32[2]; (8)
// }; -> 64 bytes

const NodeSize = 64

type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

func (n *Node) IsLeaf() bool { return n.LeafCount > 0 }

func (n *Node) toBytes(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.Min.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.Min.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.Min.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(n.Max.X()))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(n.Max.Y()))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(n.Max.Z()))
	binary.LittleEndian.PutUint32(buf[28:32], 0)

	binary.LittleEndian.PutUint32(buf[32:36], uint32(n.Left))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(n.Right))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(n.LeafFirst))
	binary.LittleEndian.PutUint32(buf[44:48], uint32(n.LeafCount))
}

// SerializeNodes packs nodes into the flat 64-byte layout consumed by the
// traversal kernel.
func SerializeNodes(nodes []Node) []byte {
	out := make([]byte, len(nodes)*NodeSize)
	for i := range nodes {
		nodes[i].toBytes(out[i*NodeSize:])
	}
	return out
}

// Primitive is one triangle reference in a bottom-level structure:
// local geometry index within the mesh plus triangle index within that
// geometry. 8 bytes on the GPU.
type Primitive struct {
	Geom uint32
	Tri  uint32
}

const PrimitiveSize = 8

// SerializePrimitives packs the leaf primitive list.
func SerializePrimitives(prims []Primitive) []byte {
	out := make([]byte, len(prims)*PrimitiveSize)
	for i, p := range prims {
		binary.LittleEndian.PutUint32(out[i*PrimitiveSize:], p.Geom)
		binary.LittleEndian.PutUint32(out[i*PrimitiveSize+4:], p.Tri)
	}
	return out
}
