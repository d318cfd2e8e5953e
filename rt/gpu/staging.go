package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// stagingRegion is one pending copy into heap-private memory.
type stagingRegion struct {
	dstOffset uint64
	data      []byte
}

// blitRegions runs the two-step upload protocol: each region's bytes go
// into a freshly mapped host-visible staging buffer which is unmapped
// (the CPU-side flush) before a copy command moves it into dst. All
// copies of one call share a single submission, and the call blocks
// until that submission completes, so no destination byte is readable
// before its copy has finished. Staging buffers are transient: released
// as soon as the blit is done, never reused.
func blitRegions(ctx *Context, dst *wgpu.Buffer, regions []stagingRegion) error {
	if len(regions) == 0 {
		return nil
	}

	staged := make([]*wgpu.Buffer, 0, len(regions))
	release := func() {
		for _, b := range staged {
			b.Release()
		}
	}

	for i, r := range regions {
		if len(r.data) == 0 {
			continue
		}
		size := align4(uint64(len(r.data)))
		buf, err := ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            fmt.Sprintf("Staging%d", i),
			Size:             size,
			Usage:            wgpu.BufferUsageCopySrc,
			MappedAtCreation: true,
		})
		if err != nil {
			release()
			return fmt.Errorf("gpu: staging alloc: %w", err)
		}
		mapped := buf.GetMappedRange(0, uint(size))
		copy(mapped, r.data)
		if err := buf.Unmap(); err != nil {
			buf.Release()
			release()
			return fmt.Errorf("gpu: staging flush: %w", err)
		}
		staged = append(staged, buf)
	}

	si := 0
	err := ctx.Submit("HeapBlit", func(enc *wgpu.CommandEncoder) error {
		for _, r := range regions {
			if len(r.data) == 0 {
				continue
			}
			src := staged[si]
			si++
			if err := enc.CopyBufferToBuffer(src, 0, dst, r.dstOffset, align4(uint64(len(r.data)))); err != nil {
				return err
			}
		}
		return nil
	})
	release()
	return err
}

// blitBytes uploads a single region. Convenience over blitRegions for
// callers that genuinely have one copy.
func blitBytes(ctx *Context, dst *wgpu.Buffer, dstOffset uint64, data []byte) error {
	return blitRegions(ctx, dst, []stagingRegion{{dstOffset: dstOffset, data: data}})
}
