package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/meshrt/rt"
	"github.com/gekko3d/meshrt/rt/bvh"
	"github.com/gekko3d/meshrt/rt/core"
	"github.com/gekko3d/meshrt/rt/shaders"
)

// RenderStats is the per-frame result of one Render call.
type RenderStats struct {
	RenderTimeMS float64
	FrameID      uint32
	Readback     bool
}

// Renderer drives the whole pipeline: scene upload, acceleration
// structure builds, argument tables and the per-frame compute dispatch.
// A single goroutine owns it; concurrency exists only between the CPU
// submitting work and the GPU executing it, and every submission blocks
// until the GPU is done.
type Renderer struct {
	ctx  *Context
	opts options
	log  rt.Logger

	width  uint32
	height uint32

	pipeline     *wgpu.ComputePipeline
	blitPipeline *wgpu.RenderPipeline
	sampler      *wgpu.Sampler

	storageTex  *wgpu.Texture
	storageView *wgpu.TextureView
	accumBuf    *wgpu.Buffer
	viewBuf     *wgpu.Buffer
	readbackBuf *wgpu.Buffer
	fb          []byte

	blitBindGroup *wgpu.BindGroup

	// Per-scene state, replaced wholesale by SetScene.
	heap   *Heap
	arena  *accelArena
	blas   []*BLASAccel
	tlas   *TLASAccel
	tables *sceneTables

	bindGroup0 *wgpu.BindGroup
	bindGroup1 *wgpu.BindGroup
	bindGroup2 *wgpu.BindGroup

	frames       core.FrameCounter
	tlasRebuilds int
	initialized  bool
	sceneSet     bool
}

// NewRenderer brings up the device context. Initialize must follow
// before any scene or frame work.
func NewRenderer(opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	o.logger.SetDebug(o.debug)

	ctx, err := NewContext(o.window, o.powerPreference, o.logger)
	if err != nil {
		return nil, err
	}
	return &Renderer{ctx: ctx, opts: o, log: o.logger}, nil
}

// Context exposes the device context, mainly for tests and the demo.
func (r *Renderer) Context() *Context { return r.ctx }

// HasNativeDisplay reports whether frames can be presented on screen.
func (r *Renderer) HasNativeDisplay() bool { return r.ctx.HasNativeDisplay() }

// TLASRebuilds counts top-level structure builds since construction.
// The count moves on SetScene only, never on camera changes.
func (r *Renderer) TLASRebuilds() int { return r.tlasRebuilds }

// Framebuffer is the host-side pixel surface, RGBA8, width x height.
// Filled by Render whenever readback runs.
func (r *Renderer) Framebuffer() []byte { return r.fb }

// Initialize allocates the output image resources and compiles the
// pipelines. Must precede SetScene and Render.
func (r *Renderer) Initialize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: bad framebuffer size %dx%d", ErrNotInitialized, width, height)
	}
	r.width = uint32(width)
	r.height = uint32(height)

	dev := r.ctx.Device
	var err error

	csModule, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Raytrace CS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.RaytraceWGSL},
	})
	if err != nil {
		return fmt.Errorf("gpu: raytrace shader: %w", err)
	}
	r.pipeline, err = dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Raytrace Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     csModule,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: raytrace pipeline: %w", err)
	}

	r.storageTex, err = dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Framebuffer Tex",
		Size:          wgpu.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("gpu: framebuffer texture: %w", err)
	}
	r.storageView, err = r.storageTex.CreateView(nil)
	if err != nil {
		return fmt.Errorf("gpu: framebuffer view: %w", err)
	}

	r.accumBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "AccumBuf",
		Size:  uint64(r.width) * uint64(r.height) * 16,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: accumulation buffer: %w", err)
	}

	// ViewParams uniform: 4 x vec4<f32> + vec4<u32>.
	r.viewBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ViewParamsUB",
		Size:  viewParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: view params buffer: %w", err)
	}

	r.readbackBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ReadbackBuf",
		Size:  uint64(readbackBytesPerRow(r.width)) * uint64(r.height),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: readback buffer: %w", err)
	}
	r.fb = make([]byte, int(r.width)*int(r.height)*4)

	if err := r.initPresent(); err != nil {
		return err
	}
	if err := r.createOutputBindGroup(); err != nil {
		return err
	}

	r.initialized = true
	r.log.Infof("initialized %dx%d, native display: %v", width, height, r.HasNativeDisplay())
	return nil
}

// SetScene uploads the scene and builds every structure the dispatch
// needs: heap, bottom- and top-level BVHs, argument tables. Any failure
// releases everything acquired so far; no partially uploaded scene is
// left usable.
func (r *Renderer) SetScene(scene *core.Scene) (err error) {
	if !r.initialized {
		return fmt.Errorf("%w: SetScene before Initialize", ErrNotInitialized)
	}
	if err := scene.Validate(); err != nil {
		return fmt.Errorf("gpu: scene rejected: %w", err)
	}
	for ti := range scene.Textures {
		t := &scene.Textures[ti]
		if t.Width > r.opts.maxTextureDim || t.Height > r.opts.maxTextureDim {
			return fmt.Errorf("%w: texture %d is %dx%d, max dimension %d",
				ErrHeapExhausted, ti, t.Width, t.Height, r.opts.maxTextureDim)
		}
	}

	r.releaseScene()
	defer func() {
		if err != nil {
			r.releaseScene()
		}
	}()

	start := time.Now()

	// Heap: size everything up front, then upload through staging.
	layout := ComputeHeapLayout(scene)
	r.heap, err = NewHeap(r.ctx, layout)
	if err != nil {
		return err
	}
	if err = blitRegions(r.ctx, r.heap.Buffer, heapUploadRegions(scene, &layout)); err != nil {
		return err
	}
	r.log.Debugf("scene %s: heap %d bytes uploaded", scene.ID, r.heap.Capacity())

	// Bottom-level structures: CPU build per mesh, then the shared
	// arena, then the build/compact submissions per mesh.
	r.blas = make([]*BLASAccel, len(scene.Meshes))
	for mi := range scene.Meshes {
		cpu, berr := bvh.BuildBLAS(scene.Meshes[mi].Geometries)
		if berr != nil {
			err = fmt.Errorf("%w: mesh %d: %v", ErrAccelBuild, mi, berr)
			return err
		}
		r.blas[mi] = NewBLASAccel(cpu)
	}

	total, nodeSpans, primSpans := planArena(r.blas)
	r.arena, err = newAccelArena(r.ctx, total)
	if err != nil {
		return err
	}
	for mi, b := range r.blas {
		if err = b.Build(r.ctx); err != nil {
			return err
		}
		if err = b.Compact(r.ctx, r.arena.Buffer, nodeSpans[mi], primSpans[mi]); err != nil {
			return err
		}
		r.log.Debugf("blas %d: built %d bytes, compacted %d", mi, b.BuiltSize(), b.CompactedSize())
	}

	// Top-level structure over instance world bounds.
	aabbs := make([][2]mgl32.Vec3, len(scene.Instances))
	for ii := range scene.Instances {
		in := &scene.Instances[ii]
		wMin, wMax := in.WorldAABB(&scene.Meshes[in.MeshIndex])
		aabbs[ii] = [2]mgl32.Vec3{wMin, wMax}
	}
	tlasCPU, terr := bvh.BuildTLAS(aabbs)
	if terr != nil {
		err = fmt.Errorf("%w: tlas: %v", ErrAccelBuild, terr)
		return err
	}
	r.tlas = NewTLASAccel(tlasCPU)
	if err = r.tlas.Build(r.ctx, len(scene.Instances)); err != nil {
		return err
	}
	if err = r.tlas.Compact(r.ctx); err != nil {
		return err
	}
	r.tlasRebuilds++

	// Argument tables, then the bind groups that tie it all together.
	r.tables, err = buildSceneTables(r.ctx, scene, &layout, r.blas)
	if err != nil {
		return err
	}
	if err = r.createSceneBindGroups(); err != nil {
		return err
	}

	r.frames.Reset()
	r.sceneSet = true
	r.log.Infof("scene %s ready in %.1f ms: %d meshes, %d instances, %d geometries, %d textures",
		scene.ID, float64(time.Since(start).Microseconds())/1000.0,
		len(scene.Meshes), len(scene.Instances), scene.GeometryCount(), len(scene.Textures))
	return nil
}

// Render runs one frame: view parameter update, one compute dispatch
// tiled over the framebuffer, optional presentation, optional readback.
// The reported time covers the dispatch submission through completion.
func (r *Renderer) Render(pos, dir, up mgl32.Vec3, fovyDeg float32, cameraChanged, forceReadback bool) (RenderStats, error) {
	if !r.initialized || !r.sceneSet {
		return RenderStats{}, fmt.Errorf("%w: Render before Initialize/SetScene", ErrNotInitialized)
	}

	frameID := r.frames.Begin(cameraChanged)
	view := core.ComputeViewParams(pos, dir, up, fovyDeg, r.width, r.height, frameID)
	r.ctx.Queue.WriteBuffer(r.viewBuf, 0, packViewParams(&view))

	wg := r.opts.workgroupSize
	wgX := (r.width + wg - 1) / wg
	wgY := (r.height + wg - 1) / wg

	start := time.Now()
	err := r.ctx.Submit("Raytrace", func(enc *wgpu.CommandEncoder) error {
		pass := enc.BeginComputePass(nil)
		pass.SetPipeline(r.pipeline)
		pass.SetBindGroup(0, r.bindGroup0, nil)
		pass.SetBindGroup(1, r.bindGroup1, nil)
		pass.SetBindGroup(2, r.bindGroup2, nil)
		pass.DispatchWorkgroups(wgX, wgY, 1)
		return pass.End()
	})
	if err != nil {
		return RenderStats{}, fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	elapsed := time.Since(start)

	if r.HasNativeDisplay() {
		r.present()
	}

	readback := forceReadback || !r.HasNativeDisplay()
	if readback {
		if err := r.readbackFramebuffer(); err != nil {
			return RenderStats{}, err
		}
	}

	r.frames.Complete()
	return RenderStats{
		RenderTimeMS: float64(elapsed.Microseconds()) / 1000.0,
		FrameID:      frameID,
		Readback:     readback,
	}, nil
}

const viewParamsSize = 80

func packViewParams(v *core.ViewParams) []byte {
	buf := make([]byte, viewParamsSize)
	putVec4 := func(off int, x, y, z, w float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(x))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(y))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(z))
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(w))
	}
	putVec4(0, v.Position.X(), v.Position.Y(), v.Position.Z(), 0)
	putVec4(16, v.DirDU.X(), v.DirDU.Y(), v.DirDU.Z(), 0)
	putVec4(32, v.DirDV.X(), v.DirDV.Y(), v.DirDV.Z(), 0)
	putVec4(48, v.DirTopLeft.X(), v.DirTopLeft.Y(), v.DirTopLeft.Z(), 0)
	binary.LittleEndian.PutUint32(buf[64:], v.Width)
	binary.LittleEndian.PutUint32(buf[68:], v.Height)
	binary.LittleEndian.PutUint32(buf[72:], v.FrameID)
	return buf
}

func readbackBytesPerRow(width uint32) uint32 {
	// wgpu requires 256-byte row alignment for texture->buffer copies.
	return (width*4 + 255) &^ uint32(255)
}

// readbackFramebuffer copies the storage texture into the map-read
// buffer, waits for the copy, then unpacks the padded rows into fb.
func (r *Renderer) readbackFramebuffer() error {
	bytesPerRow := readbackBytesPerRow(r.width)

	err := r.ctx.Submit("Readback", func(enc *wgpu.CommandEncoder) error {
		return enc.CopyTextureToBuffer(
			&wgpu.ImageCopyTexture{
				Texture:  r.storageTex,
				MipLevel: 0,
				Origin:   wgpu.Origin3D{},
			},
			&wgpu.ImageCopyBuffer{
				Buffer: r.readbackBuf,
				Layout: wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  bytesPerRow,
					RowsPerImage: r.height,
				},
			},
			&wgpu.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1},
		)
	})
	if err != nil {
		return fmt.Errorf("%w: readback copy: %v", ErrDispatch, err)
	}

	var status wgpu.BufferMapAsyncStatus
	err = r.readbackBuf.MapAsync(wgpu.MapModeRead, 0, r.readbackBuf.GetSize(), func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return fmt.Errorf("%w: readback map: %v", ErrDispatch, err)
	}
	r.ctx.Wait()
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("%w: readback map status %d", ErrDispatch, status)
	}

	data := r.readbackBuf.GetMappedRange(0, uint(r.readbackBuf.GetSize()))
	rowBytes := int(r.width) * 4
	for y := 0; y < int(r.height); y++ {
		copy(r.fb[y*rowBytes:(y+1)*rowBytes], data[y*int(bytesPerRow):y*int(bytesPerRow)+rowBytes])
	}
	if err := r.readbackBuf.Unmap(); err != nil {
		return fmt.Errorf("%w: readback unmap: %v", ErrDispatch, err)
	}
	return nil
}

func (r *Renderer) createOutputBindGroup() error {
	var err error
	r.bindGroup2, err = r.ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: r.pipeline.GetBindGroupLayout(2),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: r.storageView},
			{Binding: 1, Buffer: r.accumBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: output bind group: %w", err)
	}
	return nil
}

func (r *Renderer) createSceneBindGroups() error {
	var err error
	r.bindGroup0, err = r.ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: r.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: r.viewBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: r.tlas.Buffer, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: r.arena.Buffer, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: r.heap.Buffer, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: scene bind group 0: %w", err)
	}

	r.bindGroup1, err = r.ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: r.pipeline.GetBindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: r.tables.Instance.Buffer, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: r.tables.Mesh.Buffer, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: r.tables.Geometry.Buffer, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: r.tables.Texture.Buffer, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: r.tables.Materials, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: scene bind group 1: %w", err)
	}
	return nil
}

// releaseScene drops every per-scene GPU resource. Called on scene
// replacement and on any SetScene failure path.
func (r *Renderer) releaseScene() {
	if r.bindGroup0 != nil {
		r.bindGroup0.Release()
		r.bindGroup0 = nil
	}
	if r.bindGroup1 != nil {
		r.bindGroup1.Release()
		r.bindGroup1 = nil
	}
	if r.tables != nil {
		r.tables.Release()
		r.tables = nil
	}
	if r.tlas != nil {
		r.tlas.Release()
		r.tlas = nil
	}
	for _, b := range r.blas {
		b.releaseScratch()
	}
	r.blas = nil
	if r.arena != nil {
		r.arena.Release()
		r.arena = nil
	}
	if r.heap != nil {
		r.heap.Release()
		r.heap = nil
	}
	r.sceneSet = false
}

// Release drops all GPU resources and the device context.
func (r *Renderer) Release() {
	r.releaseScene()
	if r.bindGroup2 != nil {
		r.bindGroup2.Release()
		r.bindGroup2 = nil
	}
	if r.blitBindGroup != nil {
		r.blitBindGroup.Release()
		r.blitBindGroup = nil
	}
	if r.readbackBuf != nil {
		r.readbackBuf.Release()
		r.readbackBuf = nil
	}
	if r.viewBuf != nil {
		r.viewBuf.Release()
		r.viewBuf = nil
	}
	if r.accumBuf != nil {
		r.accumBuf.Release()
		r.accumBuf = nil
	}
	if r.storageView != nil {
		r.storageView.Release()
		r.storageView = nil
	}
	if r.storageTex != nil {
		r.storageTex.Release()
		r.storageTex = nil
	}
	if r.sampler != nil {
		r.sampler.Release()
		r.sampler = nil
	}
	r.ctx.Release()
	r.initialized = false
}
