package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/meshrt/rt/shaders"
)

// initPresent configures the surface and the fullscreen blit pipeline.
// No-op when headless; readback then stands in for presentation.
func (r *Renderer) initPresent() error {
	if !r.ctx.HasNativeDisplay() {
		return nil
	}

	caps := r.ctx.Surface.GetCapabilities(r.ctx.Adapter)
	format := caps.Formats[0]
	r.ctx.Surface.Configure(r.ctx.Adapter, r.ctx.Device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       r.width,
		Height:      r.height,
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	})

	fsModule, err := r.ctx.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Fullscreen VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.FullscreenWGSL},
	})
	if err != nil {
		return fmt.Errorf("gpu: blit shader: %w", err)
	}

	r.blitPipeline, err = r.ctx.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     fsModule,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     fsModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: blit pipeline: %w", err)
	}

	r.sampler, err = r.ctx.Device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeNearest,
		MagFilter:     wgpu.FilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("gpu: blit sampler: %w", err)
	}

	r.blitBindGroup, err = r.ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: r.blitPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: r.storageView},
			{Binding: 1, Sampler: r.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: blit bind group: %w", err)
	}
	return nil
}

// present blits the storage texture to the surface. Presentation
// problems are logged, not fatal: the frame itself already rendered.
func (r *Renderer) present() {
	next, err := r.ctx.Surface.GetCurrentTexture()
	if err != nil {
		r.log.Warnf("present: surface texture: %v", err)
		return
	}
	defer next.Release()

	view, err := next.CreateView(nil)
	if err != nil {
		r.log.Warnf("present: surface view: %v", err)
		return
	}
	defer view.Release()

	enc, err := r.ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		r.log.Warnf("present: encoder: %v", err)
		return
	}

	pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{A: 1},
		}},
	})
	pass.SetPipeline(r.blitPipeline)
	pass.SetBindGroup(0, r.blitBindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	if err := pass.End(); err != nil {
		r.log.Warnf("present: pass end: %v", err)
		return
	}

	cmd, err := enc.Finish(nil)
	if err != nil {
		r.log.Warnf("present: encoder finish: %v", err)
		return
	}
	r.ctx.Queue.Submit(cmd)
	r.ctx.Surface.Present()
}
