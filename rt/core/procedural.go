package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CubeGeometry builds an axis-aligned box centered at the origin with
// per-face normals and UVs.
func CubeGeometry(sizeX, sizeY, sizeZ float32) Geometry {
	hx, hy, hz := sizeX/2, sizeY/2, sizeZ/2

	type face struct {
		origin, du, dv mgl32.Vec3
		normal         mgl32.Vec3
	}
	faces := []face{
		{mgl32.Vec3{-hx, -hy, hz}, mgl32.Vec3{2 * hx, 0, 0}, mgl32.Vec3{0, 2 * hy, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{hx, -hy, -hz}, mgl32.Vec3{-2 * hx, 0, 0}, mgl32.Vec3{0, 2 * hy, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{hx, -hy, hz}, mgl32.Vec3{0, 0, -2 * hz}, mgl32.Vec3{0, 2 * hy, 0}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec3{-hx, -hy, -hz}, mgl32.Vec3{0, 0, 2 * hz}, mgl32.Vec3{0, 2 * hy, 0}, mgl32.Vec3{-1, 0, 0}},
		{mgl32.Vec3{-hx, hy, hz}, mgl32.Vec3{2 * hx, 0, 0}, mgl32.Vec3{0, 0, -2 * hz}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-hx, -hy, -hz}, mgl32.Vec3{2 * hx, 0, 0}, mgl32.Vec3{0, 0, 2 * hz}, mgl32.Vec3{0, -1, 0}},
	}

	g := Geometry{}
	for _, f := range faces {
		base := uint32(len(g.Vertices))
		g.Vertices = append(g.Vertices,
			f.origin,
			f.origin.Add(f.du),
			f.origin.Add(f.du).Add(f.dv),
			f.origin.Add(f.dv),
		)
		for i := 0; i < 4; i++ {
			g.Normals = append(g.Normals, f.normal)
		}
		g.UVs = append(g.UVs,
			mgl32.Vec2{0, 1}, mgl32.Vec2{1, 1}, mgl32.Vec2{1, 0}, mgl32.Vec2{0, 0})
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return g
}

// SphereGeometry builds a UV sphere. resolution is the segment count
// along the equator; rings is derived from it.
func SphereGeometry(radius float32, resolution int) Geometry {
	if resolution < 3 {
		resolution = 3
	}
	rings := resolution/2 + 1

	g := Geometry{}
	for ring := 0; ring <= rings; ring++ {
		theta := float64(ring) / float64(rings) * math.Pi
		sinT, cosT := math.Sin(theta), math.Cos(theta)
		for seg := 0; seg <= resolution; seg++ {
			phi := float64(seg) / float64(resolution) * 2 * math.Pi
			n := mgl32.Vec3{
				float32(sinT * math.Cos(phi)),
				float32(cosT),
				float32(sinT * math.Sin(phi)),
			}
			g.Vertices = append(g.Vertices, n.Mul(radius))
			g.Normals = append(g.Normals, n)
			g.UVs = append(g.UVs, mgl32.Vec2{
				float32(seg) / float32(resolution),
				float32(ring) / float32(rings),
			})
		}
	}

	stride := uint32(resolution + 1)
	for ring := uint32(0); ring < uint32(rings); ring++ {
		for seg := uint32(0); seg < uint32(resolution); seg++ {
			a := ring*stride + seg
			b := a + stride
			g.Indices = append(g.Indices, a, b, a+1, a+1, b, b+1)
		}
	}
	return g
}

// PlaneGeometry builds a horizontal quad at y=0 spanning sizeX by sizeZ,
// facing +y, UV-mapped once across.
func PlaneGeometry(sizeX, sizeZ float32) Geometry {
	hx, hz := sizeX/2, sizeZ/2
	return Geometry{
		Vertices: []mgl32.Vec3{
			{-hx, 0, -hz}, {-hx, 0, hz}, {hx, 0, hz}, {hx, 0, -hz},
		},
		Normals: []mgl32.Vec3{
			{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0},
		},
		UVs: []mgl32.Vec2{
			{0, 0}, {0, 1}, {1, 1}, {1, 0},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// CheckerTexture builds a two-color checkerboard, cells pixels per
// square. Colors are RGBA8.
func CheckerTexture(width, height, cells int, a, b [4]byte) Texture {
	if cells < 1 {
		cells = 1
	}
	pix := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := a
			if (x/cells+y/cells)%2 == 1 {
				c = b
			}
			copy(pix[(y*width+x)*4:], c[:])
		}
	}
	return Texture{Width: width, Height: height, Pixels: pix, ColorSpace: ColorSpaceSRGB}
}
