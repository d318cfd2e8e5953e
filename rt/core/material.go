package core

import "github.com/go-gl/mathgl/mgl32"

// Material is a flat base-color material. TextureID indexes the scene's
// texture list, -1 for untextured.
type Material struct {
	BaseColor mgl32.Vec3
	TextureID int32
}

func NewMaterial(baseColor mgl32.Vec3) Material {
	return Material{BaseColor: baseColor, TextureID: -1}
}

func DefaultMaterial() Material {
	return Material{BaseColor: mgl32.Vec3{1, 1, 1}, TextureID: -1}
}
