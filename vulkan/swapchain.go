package vulkan

import (
	"github.com/andewx/diesel/driver"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

const maxBuffers = 16

type Factory struct {
	object
}

// CreateSwapChainForHwnd creates a Vulkan swapchain on a surface of window,
// which must be a SurfaceWindow, plus the back buffers the application
// renders into. Present blits buffer 0 into the acquired swapchain image.
func (f *Factory) CreateSwapChainForHwnd(device driver.Device, window driver.Window, desc *driver.SwapChainDesc1) (driver.Status, driver.SwapChain) {
	dev, ok := device.(*Device)
	switch {
	case !ok || dev == nil || desc == nil:
		return driver.ErrInvalidArg, nil
	case dev.lost():
		return driver.ErrDeviceRemoved, nil
	case window == nil:
		return driver.ErrInvalidCall, nil
	}
	if v, ok := window.(driver.WindowValidity); ok && !v.Valid() {
		return driver.ErrInvalidCall, nil
	}
	sw, ok := window.(SurfaceWindow)
	if !ok {
		dev.log.Warn("window cannot create a Vulkan surface")
		return driver.ErrInvalidCall, nil
	}
	d := *desc
	minBuffers := uint32(1)
	if d.SwapEffect.Flip() {
		minBuffers = 2
	}
	switch {
	case d.BufferCount < minBuffers || d.BufferCount > maxBuffers:
		return driver.ErrInvalidCall, nil
	case !d.Format.Renderable() || vkFormat(d.Format) == vk.FormatUndefined:
		return driver.ErrInvalidCall, nil
	case d.SampleDesc.Count != 1 || d.SampleDesc.Quality != 0:
		return driver.ErrInvalidCall, nil
	case d.Stereo:
		return driver.ErrUnsupported, nil
	}
	if d.Width == 0 || d.Height == 0 {
		w, h := window.ClientSize()
		if d.Width == 0 {
			d.Width = uint32(max(w, 8))
		}
		if d.Height == 0 {
			d.Height = uint32(max(h, 8))
		}
	}

	p := f.platform
	surface, err := sw.CreateSurface(p.instance)
	if err != nil {
		dev.log.WithError(err).Warn("create surface")
		return driver.ErrInvalidCall, nil
	}
	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(dev.gpu, dev.family, surface, &supported)
	if supported != vk.True {
		vk.DestroySurface(p.instance, surface, nil)
		dev.log.Warn("queue family cannot present to the surface")
		return driver.ErrUnsupported, nil
	}

	sc := &SwapChain{desc: d, device: dev, window: window, surface: surface, log: dev.log.WithField("swapchain", window.Handle())}
	if status := sc.create(); status.Failed() {
		sc.destroy()
		return status, nil
	}

	var bind driver.BindFlag
	if d.BufferUsage&driver.UsageRenderTargetOutput != 0 {
		bind |= driver.BindRenderTarget
	}
	if d.BufferUsage&driver.UsageShaderInput != 0 {
		bind |= driver.BindShaderResource
	}
	for i := uint32(0); i < d.BufferCount; i++ {
		t, status := dev.newTexture(driver.Texture2DDesc{
			Width:      d.Width,
			Height:     d.Height,
			Format:     d.Format,
			SampleDesc: d.SampleDesc,
			BindFlags:  bind,
		}, nil)
		if status.Failed() {
			sc.destroy()
			return status, nil
		}
		sc.buffers = append(sc.buffers, t)
	}
	dev.AddRef()
	sc.init(p, sc.free)
	sc.log.WithFields(logrus.Fields{
		"width":   d.Width,
		"height":  d.Height,
		"buffers": d.BufferCount,
		"images":  len(sc.images),
		"flip":    d.SwapEffect.Flip(),
	}).Debug("swapchain created")
	return driver.StatusOK, sc
}

type SwapChain struct {
	object
	desc    driver.SwapChainDesc1
	device  *Device
	window  driver.Window
	buffers []*Texture2D
	log     logrus.FieldLogger

	surface   vk.Surface
	swapchain vk.Swapchain
	extent    vk.Extent2D
	format    vk.Format
	images    []vk.Image
	acquired  []vk.Semaphore
	rendered  []vk.Semaphore
	frame     int
	presents  uint64
}

// create builds the Vulkan swapchain with FIFO presentation, the only mode
// every implementation supports.
func (s *SwapChain) create() driver.Status {
	dev := s.device
	var caps vk.SurfaceCapabilities
	if ret := vk.GetPhysicalDeviceSurfaceCapabilities(dev.gpu, s.surface, &caps); isError(ret) {
		return dev.check(ret)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	if vk.ImageUsageFlagBits(caps.SupportedUsageFlags)&vk.ImageUsageTransferDstBit == 0 {
		s.log.Warn("surface images cannot be transfer destinations")
		return driver.ErrUnsupported
	}

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(dev.gpu, s.surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(dev.gpu, s.surface, &formatCount, formats)
	if formatCount == 0 {
		return driver.ErrUnsupported
	}
	wanted := vkFormat(s.desc.Format)
	format := formats[0]
	format.Deref()
	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == wanted {
			format = formats[i]
			break
		}
	}
	if format.Format == vk.FormatUndefined {
		format.Format = wanted
	}
	s.format = format.Format

	s.extent = caps.CurrentExtent
	if s.extent.Width == vk.MaxUint32 {
		s.extent = vk.Extent2D{
			Width:  min(max(s.desc.Width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width),
			Height: min(max(s.desc.Height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height),
		}
	}

	imageCount := max(s.desc.BufferCount, caps.MinImageCount)
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	preTransform := vk.SurfaceTransformIdentityBit
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&preTransform == 0 {
		preTransform = caps.CurrentTransform
	}

	// One of these is guaranteed to be supported.
	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	if s.desc.AlphaMode == driver.AlphaModePremultiplied {
		compositeAlphaFlags[0], compositeAlphaFlags[1] = compositeAlphaFlags[1], compositeAlphaFlags[0]
	}
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	ret := vk.CreateSwapchain(dev.handle, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      s.extent,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     preTransform,
		CompositeAlpha:   compositeAlpha,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		PresentMode:      vk.PresentModeFifo,
		OldSwapchain:     vk.NullSwapchain,
		Clipped:          vk.True,
	}, nil, &s.swapchain)
	if isError(ret) {
		s.log.WithError(NewError(ret)).Warn("create swapchain")
		return dev.check(ret)
	}

	var count uint32
	vk.GetSwapchainImages(dev.handle, s.swapchain, &count, nil)
	s.images = make([]vk.Image, count)
	vk.GetSwapchainImages(dev.handle, s.swapchain, &count, s.images)

	for i := uint32(0); i < count; i++ {
		var acquired, rendered vk.Semaphore
		info := &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		if ret := vk.CreateSemaphore(dev.handle, info, nil, &acquired); isError(ret) {
			return dev.check(ret)
		}
		s.acquired = append(s.acquired, acquired)
		if ret := vk.CreateSemaphore(dev.handle, info, nil, &rendered); isError(ret) {
			return dev.check(ret)
		}
		s.rendered = append(s.rendered, rendered)
	}
	return driver.StatusOK
}

func (s *SwapChain) destroy() {
	dev := s.device
	vk.DeviceWaitIdle(dev.handle)
	for _, b := range s.buffers {
		b.Release()
	}
	s.buffers = nil
	for i := range s.acquired {
		vk.DestroySemaphore(dev.handle, s.acquired[i], nil)
	}
	for i := range s.rendered {
		vk.DestroySemaphore(dev.handle, s.rendered[i], nil)
	}
	s.acquired, s.rendered = nil, nil
	if s.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(dev.handle, s.swapchain, nil)
		s.swapchain = vk.NullSwapchain
	}
	vk.DestroySurface(dev.platform.instance, s.surface, nil)
}

func (s *SwapChain) free() {
	s.destroy()
	s.device.Release()
}

func (s *SwapChain) Desc() driver.SwapChainDesc1 { return s.desc }

// GetBuffer adds a reference to buffer index for the caller.
func (s *SwapChain) GetBuffer(index uint32) (driver.Status, driver.Texture2D) {
	if index >= uint32(len(s.buffers)) {
		return driver.ErrInvalidCall, nil
	}
	if !s.desc.SwapEffect.Flip() && index > 0 {
		return driver.ErrInvalidCall, nil
	}
	b := s.buffers[index]
	b.AddRef()
	return driver.StatusOK, b
}

// Present shows buffer 0 on the window. The presentation engine runs in FIFO
// mode, so every present waits for one vertical blank whatever the interval.
func (s *SwapChain) Present(syncInterval uint32, flags driver.PresentFlag) driver.Status {
	dev := s.device
	if dev.lost() {
		return driver.ErrDeviceRemoved
	}
	if syncInterval > 4 {
		s.log.WithField("sync", syncInterval).Warn("present interval out of range")
		return driver.ErrInvalidCall
	}
	if v, ok := s.window.(driver.WindowValidity); ok && !v.Valid() {
		return driver.ErrInvalidCall
	}
	if w, h := s.window.ClientSize(); w <= 0 || h <= 0 {
		return driver.StatusOccluded
	}
	if flags&driver.PresentTest != 0 {
		return driver.StatusOK
	}

	var index uint32
	ret := vk.AcquireNextImage(dev.handle, s.swapchain, vk.MaxUint64, s.acquired[s.frame], nil, &index)
	switch ret {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return driver.StatusOccluded
	default:
		s.log.WithError(NewError(ret)).Warn("acquire swapchain image")
		status := dev.check(ret)
		if dev.lost() {
			return driver.ErrDeviceRemoved
		}
		return status
	}

	back, image := s.buffers[0], s.images[index]
	sync := &submission{
		wait:      s.acquired[s.frame],
		waitStage: vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		signal:    s.rendered[s.frame],
	}
	status := dev.submit(sync, func(cmd vk.CommandBuffer) {
		back.transition(cmd, vk.ImageLayoutTransferSrcOptimal)
		imageBarrier(cmd, image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
		vk.CmdBlitImage(cmd,
			back.image, vk.ImageLayoutTransferSrcOptimal,
			image, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{{
				SrcSubresource: colorLayers,
				SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(back.desc.Width), Y: int32(back.desc.Height), Z: 1}},
				DstSubresource: colorLayers,
				DstOffsets:     [2]vk.Offset3D{{}, {X: int32(s.extent.Width), Y: int32(s.extent.Height), Z: 1}},
			}}, vk.FilterNearest)
		imageBarrier(cmd, image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)
		back.rest(cmd)
	})
	if status.Failed() {
		return status
	}

	ret = vk.QueuePresent(dev.queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.rendered[s.frame]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.swapchain},
		PImageIndices:      []uint32{index},
	})
	s.frame = (s.frame + 1) % len(s.acquired)
	switch ret {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return driver.StatusOccluded
	default:
		s.log.WithError(NewError(ret)).Warn("present")
		status := dev.check(ret)
		if dev.lost() {
			return driver.ErrDeviceRemoved
		}
		return status
	}
	if syncInterval != 1 {
		s.log.WithField("sync", syncInterval).Debug("presented with one vertical blank")
	}
	s.presents++
	return driver.StatusOK
}

// PresentCount is the number of completed presents on s.
func (s *SwapChain) PresentCount() uint64 { return s.presents }

func imageBarrier(cmd vk.CommandBuffer, image vk.Image, from, to vk.ImageLayout) {
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
			OldLayout:           from,
			NewLayout:           to,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange:    colorRange,
		}})
}
