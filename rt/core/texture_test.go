package core

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTextureFromImageRepacksTight(t *testing.T) {
	src := image.NewNRGBA(image.Rect(2, 3, 10, 7)) // non-zero origin, 8x4
	src.Set(2, 3, color.NRGBA{R: 200, A: 255})

	tex := NewTextureFromImage(src, ColorSpaceLinear, 0)
	assert.Equal(t, 8, tex.Width)
	assert.Equal(t, 4, tex.Height)
	assert.Len(t, tex.Pixels, 8*4*4)
	assert.Equal(t, byte(200), tex.Pixels[0])
	assert.Equal(t, ColorSpaceLinear, tex.ColorSpace)
}

func TestNewTextureFromImageDownscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	tex := NewTextureFromImage(src, ColorSpaceSRGB, 20)
	assert.Equal(t, 20, tex.Width)
	assert.Equal(t, 10, tex.Height)
	assert.Len(t, tex.Pixels, 20*10*4)
}
