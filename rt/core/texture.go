package core

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// ColorSpace is the declared color space of a texture's pixel data.
type ColorSpace int

const (
	ColorSpaceLinear ColorSpace = iota
	ColorSpaceSRGB
)

// Texture is tightly packed RGBA8 pixel data. sRGB textures are decoded
// to linear in the shader based on the flag carried through the texture
// argument table.
type Texture struct {
	Width      int
	Height     int
	Pixels     []byte // Width*Height*4
	ColorSpace ColorSpace
}

// NewTextureFromImage repacks any image.Image into RGBA8. The source is
// resampled only when maxDim is exceeded.
func NewTextureFromImage(img image.Image, cs ColorSpace, maxDim int) Texture {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim > 0 && (w > maxDim || h > maxDim) {
		if w >= h {
			h = h * maxDim / w
			w = maxDim
		} else {
			w = w * maxDim / h
			h = maxDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	}

	// image.RGBA rows may carry padding; repack tight.
	pixels := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		copy(pixels[y*w*4:(y+1)*w*4], dst.Pix[y*dst.Stride:y*dst.Stride+w*4])
	}

	return Texture{Width: w, Height: h, Pixels: pixels, ColorSpace: cs}
}
