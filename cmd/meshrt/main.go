package main

import (
	"flag"
	"image"
	"image/png"
	"math"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/meshrt/rt"
	"github.com/gekko3d/meshrt/rt/core"
	"github.com/gekko3d/meshrt/rt/gpu"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	width := flag.Int("width", 1280, "Framebuffer width")
	height := flag.Int("height", 720, "Framebuffer height")
	frames := flag.Int("frames", 16, "Accumulation frames in headless mode")
	out := flag.String("out", "meshrt.png", "Output image path in headless mode")
	windowed := flag.Bool("window", false, "Render to a window instead of a file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := rt.NewDefaultLogger("meshrt", *debug)

	opts := []gpu.Option{gpu.WithLogger(logger), gpu.WithDebug(*debug)}
	var window *glfw.Window
	if *windowed {
		if err := glfw.Init(); err != nil {
			panic(err)
		}
		defer glfw.Terminate()

		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
		glfw.WindowHint(glfw.Resizable, glfw.False)

		var err error
		window, err = glfw.CreateWindow(*width, *height, "MeshRT", nil, nil)
		if err != nil {
			panic(err)
		}
		defer window.Destroy()
		opts = append(opts, gpu.WithWindow(window))
	}

	renderer, err := gpu.NewRenderer(opts...)
	if err != nil {
		logger.Errorf("renderer: %v", err)
		os.Exit(1)
	}
	defer renderer.Release()

	if err := renderer.Initialize(*width, *height); err != nil {
		logger.Errorf("initialize: %v", err)
		os.Exit(1)
	}
	if err := renderer.SetScene(demoScene()); err != nil {
		logger.Errorf("scene: %v", err)
		os.Exit(1)
	}

	if window != nil {
		runWindowed(renderer, window, logger)
		return
	}

	// Headless: accumulate a few frames, write the last readback.
	pos, dir, up := cameraAt(0)
	for i := 0; i < *frames; i++ {
		stats, err := renderer.Render(pos, dir, up, 55, i == 0, i == *frames-1)
		if err != nil {
			logger.Errorf("frame %d: %v", i, err)
			os.Exit(1)
		}
		logger.Debugf("frame %d: %.2f ms", stats.FrameID, stats.RenderTimeMS)
	}
	if err := writePNG(*out, renderer.Framebuffer(), *width, *height); err != nil {
		logger.Errorf("write %s: %v", *out, err)
		os.Exit(1)
	}
	logger.Infof("wrote %s (%dx%d, %d frames)", *out, *width, *height, *frames)
}

func runWindowed(renderer *gpu.Renderer, window *glfw.Window, logger rt.Logger) {
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	angle := float32(0)
	for !window.ShouldClose() {
		glfw.PollEvents()

		// Slow orbit around the scene; every frame is a camera change
		// so accumulation restarts each frame.
		angle += 0.01
		pos, dir, up := cameraAt(angle)
		stats, err := renderer.Render(pos, dir, up, 55, true, false)
		if err != nil {
			logger.Errorf("render: %v", err)
			return
		}
		logger.Debugf("frame: %.2f ms", stats.RenderTimeMS)
	}
}

// demoScene is a checkered floor with a textured cube and two spheres.
func demoScene() *core.Scene {
	s := core.NewScene()
	s.Meshes = []core.Mesh{
		{Geometries: []core.Geometry{core.PlaneGeometry(20, 20)}},
		{Geometries: []core.Geometry{core.CubeGeometry(1.6, 1.6, 1.6)}},
		{Geometries: []core.Geometry{core.SphereGeometry(1, 48)}},
	}
	s.Instances = []core.Instance{
		{Transform: mgl32.Ident4(), MeshIndex: 0, MaterialIDs: []uint32{0}},
		{Transform: mgl32.Translate3D(0, 0.8, 0), MeshIndex: 1, MaterialIDs: []uint32{1}},
		{Transform: mgl32.Translate3D(-2.4, 1, 1), MeshIndex: 2, MaterialIDs: []uint32{2}},
		{Transform: mgl32.Translate3D(2.4, 0.6, -0.5).Mul4(mgl32.Scale3D(0.6, 0.6, 0.6)), MeshIndex: 2, MaterialIDs: []uint32{3}},
	}
	s.Materials = []core.Material{
		{BaseColor: mgl32.Vec3{1, 1, 1}, TextureID: 0},
		{BaseColor: mgl32.Vec3{1, 1, 1}, TextureID: 1},
		{BaseColor: mgl32.Vec3{0.9, 0.25, 0.2}, TextureID: -1},
		{BaseColor: mgl32.Vec3{0.2, 0.4, 0.9}, TextureID: -1},
	}
	s.Textures = []core.Texture{
		core.CheckerTexture(512, 512, 32, [4]byte{235, 235, 235, 255}, [4]byte{40, 40, 40, 255}),
		core.CheckerTexture(128, 128, 16, [4]byte{250, 200, 60, 255}, [4]byte{120, 70, 20, 255}),
	}
	return s
}

func cameraAt(angle float32) (pos, dir, up mgl32.Vec3) {
	r := float32(7)
	pos = mgl32.Vec3{
		r * float32(math.Sin(float64(angle))),
		3.2,
		r * float32(math.Cos(float64(angle))),
	}
	target := mgl32.Vec3{0, 0.8, 0}
	return pos, target.Sub(pos).Normalize(), mgl32.Vec3{0, 1, 0}
}

func writePNG(path string, rgba []byte, w, h int) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, rgba)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
