package vulkan

import (
	"github.com/andewx/diesel/driver"
	vk "github.com/vulkan-go/vulkan"
)

type passKey struct {
	format vk.Format
	clear  bool
}

// renderPass returns the single color attachment pass for format. A clearing
// pass discards the previous contents; a loading pass keeps them. Both leave
// the attachment in ColorAttachmentOptimal.
func (d *Device) renderPass(format vk.Format, clear bool) (vk.RenderPass, driver.Status) {
	key := passKey{format: format, clear: clear}
	if pass, ok := d.passes[key]; ok {
		return pass, driver.StatusOK
	}

	loadOp, initial := vk.AttachmentLoadOpLoad, vk.ImageLayoutColorAttachmentOptimal
	if clear {
		loadOp, initial = vk.AttachmentLoadOpClear, vk.ImageLayoutUndefined
	}
	attachmentDescriptions := []vk.AttachmentDescription{{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	colorReferences := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorReferences,
	}}
	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:    vk.MaxUint32,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
		},
		{
			SrcSubpass:    0,
			DstSubpass:    vk.MaxUint32,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		},
	}

	var pass vk.RenderPass
	ret := vk.CreateRenderPass(d.handle, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &pass)
	if isError(ret) {
		d.log.WithError(NewError(ret)).Error("create render pass")
		return pass, d.check(ret)
	}
	d.passes[key] = pass
	return pass, driver.StatusOK
}
