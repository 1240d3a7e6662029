package vulkan

import (
	"unsafe"

	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

type Device struct {
	object
	handle   vk.Device
	gpu      vk.PhysicalDevice
	memProps vk.PhysicalDeviceMemoryProperties
	family   uint32
	queue    vk.Queue
	flags    driver.CreateDeviceFlag
	removed  driver.Status
	log      logrus.FieldLogger

	cmds           *CommandBufferManager
	fences         *FenceManager
	pipelineLayout vk.PipelineLayout
	passes         map[passKey]vk.RenderPass
	pipelines      map[pipelineKey]vk.Pipeline
}

func newDevice(p *Platform, gpu vk.PhysicalDevice, family uint32, flags driver.CreateDeviceFlag) (*Device, driver.Status) {
	d := &Device{
		gpu:       gpu,
		family:    family,
		flags:     flags,
		log:       p.log,
		passes:    make(map[passKey]vk.RenderPass),
		pipelines: make(map[pipelineKey]vk.Pipeline),
	}
	vk.GetPhysicalDeviceMemoryProperties(gpu, &d.memProps)
	d.memProps.Deref()

	actual, err := DeviceExtensions(gpu)
	if err != nil {
		p.log.WithError(err).Warn("enumerate device extensions")
		return nil, driver.ErrFail
	}
	extensions, missing := checkExisting(actual, []string{"VK_KHR_swapchain"})
	if missing > 0 {
		p.log.Warn("VK_KHR_swapchain not available, presentation disabled")
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	var handle vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(p.layers)),
		PpEnabledLayerNames:     p.layers,
	}, nil, &handle)
	if isError(ret) {
		p.log.WithError(NewError(ret)).Warn("create device")
		return nil, statusOf(ret)
	}
	d.handle = handle
	vk.GetDeviceQueue(handle, family, 0, &d.queue)

	if d.cmds, err = NewCommandBufferManager(handle, vk.CommandBufferLevelPrimary, family); err != nil {
		vk.DestroyDevice(handle, nil)
		p.log.WithError(err).Warn("create command pool")
		return nil, driver.ErrOutOfMemory
	}
	d.fences = NewFenceManager(handle)

	ret = vk.CreatePipelineLayout(handle, &vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}, nil, &d.pipelineLayout)
	if isError(ret) {
		d.cmds.Destroy()
		vk.DestroyDevice(handle, nil)
		return nil, statusOf(ret)
	}

	d.init(p, d.destroy)
	d.log = p.log.WithField("gpu", vk.ToString(props.DeviceName[:]))
	d.log.WithField("flags", uint32(flags)).Debug("device created")
	return d, driver.StatusOK
}

func (d *Device) destroy() {
	vk.DeviceWaitIdle(d.handle)
	for key, pipeline := range d.pipelines {
		vk.DestroyPipeline(d.handle, pipeline, nil)
		delete(d.pipelines, key)
	}
	for key, pass := range d.passes {
		vk.DestroyRenderPass(d.handle, pass, nil)
		delete(d.passes, key)
	}
	vk.DestroyPipelineLayout(d.handle, d.pipelineLayout, nil)
	d.fences.Destroy()
	d.cmds.Destroy()
	vk.DestroyDevice(d.handle, nil)
	d.platform.forget(d)
}

func (d *Device) RemovedReason() driver.Status { return d.removed }

func (d *Device) lost() bool { return d.removed.Failed() }

// check records device loss. It returns the status the caller should report.
func (d *Device) check(ret vk.Result) driver.Status {
	if ret == vk.ErrorDeviceLost && !d.lost() {
		d.removed = driver.ErrDeviceHung
		d.log.WithField("reason", d.removed).Warn("device removed")
	}
	return statusOf(ret)
}

// submission adds semaphores to a submit, for presentation.
type submission struct {
	wait      vk.Semaphore
	waitStage vk.PipelineStageFlags
	signal    vk.Semaphore
}

// submit records commands into a one-shot command buffer, submits it and
// waits for it to complete.
func (d *Device) submit(sync *submission, record func(cmd vk.CommandBuffer)) driver.Status {
	if d.lost() {
		return driver.ErrDeviceRemoved
	}
	cmd, err := d.cmds.NewCommandBuffer()
	if err != nil {
		d.log.WithError(err).Error("command buffer")
		return driver.ErrOutOfMemory
	}
	defer d.cmds.Reset()

	ret := vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if isError(ret) {
		return d.check(ret)
	}
	record(cmd)
	if ret := vk.EndCommandBuffer(cmd); isError(ret) {
		return d.check(ret)
	}

	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	if sync != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{sync.wait}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{sync.waitStage}
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{sync.signal}
	}
	fence, err := d.fences.NewFence()
	if err != nil {
		d.log.WithError(err).Error("fence")
		return driver.ErrOutOfMemory
	}
	if ret := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{info}, fence); isError(ret) {
		d.fences.Cancel()
		return d.check(ret)
	}
	return d.check(d.fences.Wait())
}

// memBuffer is a host visible, coherent buffer mapped for its whole life.
type memBuffer struct {
	device vk.Device
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   int
	ptr    unsafe.Pointer
}

func (d *Device) newMemBuffer(size int, usage vk.BufferUsageFlagBits, data []byte) (*memBuffer, vk.Result) {
	var buffer vk.Buffer
	ret := vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vk.BufferUsageFlags(usage),
		Size:        vk.DeviceSize(size),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if isError(ret) {
		return nil, ret
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, buffer, &memReqs)
	memReqs.Deref()
	memory, ret := d.allocate(memReqs, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if isError(ret) {
		vk.DestroyBuffer(d.handle, buffer, nil)
		return nil, ret
	}
	vk.BindBufferMemory(d.handle, buffer, memory, 0)

	b := &memBuffer{device: d.handle, buffer: buffer, memory: memory, size: size}
	if ret := vk.MapMemory(d.handle, memory, 0, vk.DeviceSize(size), 0, &b.ptr); isError(ret) {
		b.destroy()
		return nil, ret
	}
	if len(data) > 0 {
		vk.Memcopy(b.ptr, data[:min(len(data), size)])
	}
	return b, vk.Success
}

func (b *memBuffer) bytes() []byte {
	return unsafe.Slice((*byte)(b.ptr), b.size)
}

func (b *memBuffer) destroy() {
	if b.ptr != nil {
		vk.UnmapMemory(b.device, b.memory)
		b.ptr = nil
	}
	vk.FreeMemory(b.device, b.memory, nil)
	vk.DestroyBuffer(b.device, b.buffer, nil)
}

func (d *Device) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlagBits) (vk.DeviceMemory, vk.Result) {
	var memory vk.DeviceMemory
	find := FindRequiredMemoryType
	if props&vk.MemoryPropertyHostVisibleBit == 0 {
		find = FindRequiredMemoryTypeFallback
	}
	index, ok := find(d.memProps, reqs.MemoryTypeBits, props)
	if !ok {
		return memory, vk.ErrorOutOfDeviceMemory
	}
	ret := vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}, nil, &memory)
	return memory, ret
}

func validAccess(usage driver.Usage, bind driver.BindFlag, cpu driver.CPUAccessFlag, hasInit bool) bool {
	switch usage {
	case driver.UsageDefault:
		return cpu == 0
	case driver.UsageImmutable:
		return cpu == 0 && hasInit
	case driver.UsageDynamic:
		return cpu == driver.CPUAccessWrite
	case driver.UsageStaging:
		return bind == 0 && cpu != 0
	}
	return false
}

func (d *Device) CreateBuffer(desc *driver.BufferDesc, initial *driver.SubresourceData) (driver.Status, driver.Buffer) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	if desc == nil {
		return driver.ErrPointer, nil
	}
	hasInit := initial != nil && initial.SysMem != nil
	if desc.ByteWidth == 0 || !validAccess(desc.Usage, desc.BindFlags, desc.CPUAccessFlags, hasInit) {
		return driver.ErrInvalidArg, nil
	}
	if desc.MiscFlags&driver.ResourceMiscBufferStructured != 0 {
		if s := desc.StructureByteStride; s == 0 || desc.ByteWidth%s != 0 {
			return driver.ErrInvalidArg, nil
		}
	}
	var data []byte
	if hasInit {
		if uint64(len(initial.SysMem)) < uint64(desc.ByteWidth) {
			return driver.ErrInvalidArg, nil
		}
		data = initial.SysMem
	}
	mem, ret := d.newMemBuffer(int(desc.ByteWidth), bufferUsage(desc.BindFlags), data)
	if isError(ret) {
		d.log.WithError(NewError(ret)).Warn("create buffer")
		return d.check(ret), nil
	}
	b := &Buffer{desc: *desc, mem: mem}
	d.child(&b.object, mem.destroy)
	return driver.StatusOK, b
}

func (d *Device) CreateTexture2D(desc *driver.Texture2DDesc, initial *driver.SubresourceData) (driver.Status, driver.Texture2D) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	if desc == nil {
		return driver.ErrPointer, nil
	}
	hasInit := initial != nil && initial.SysMem != nil
	size := desc.Format.Size()
	switch {
	case desc.Width == 0 || desc.Height == 0 || size == 0:
		return driver.ErrInvalidArg, nil
	case desc.MipLevels > 1 || desc.ArraySize > 1 || desc.SampleDesc.Count > 1:
		return driver.ErrUnsupported, nil
	case !validAccess(desc.Usage, desc.BindFlags, desc.CPUAccessFlags, hasInit):
		return driver.ErrInvalidArg, nil
	case desc.BindFlags&driver.BindRenderTarget != 0 && !desc.Format.Renderable():
		return driver.ErrInvalidArg, nil
	}
	var data []byte
	if hasInit {
		pitch := int(desc.Width) * size
		srcPitch := int(initial.SysMemPitch)
		if srcPitch == 0 {
			srcPitch = pitch
		}
		if len(initial.SysMem) < srcPitch*(int(desc.Height)-1)+pitch {
			return driver.ErrInvalidArg, nil
		}
		data = make([]byte, pitch*int(desc.Height))
		for y := 0; y < int(desc.Height); y++ {
			copy(data[y*pitch:(y+1)*pitch], initial.SysMem[y*srcPitch:])
		}
	}
	t, status := d.newTexture(*desc, data)
	if status.Failed() {
		return status, nil
	}
	return driver.StatusOK, t
}

func (d *Device) CreateRenderTargetView(res driver.Texture2D) (driver.Status, driver.RenderTargetView) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	tex, ok := res.(*Texture2D)
	if !ok || tex == nil || tex.image == nil {
		return driver.ErrInvalidArg, nil
	}
	if tex.desc.BindFlags&driver.BindRenderTarget == 0 || !tex.desc.Format.Renderable() {
		return driver.ErrInvalidArg, nil
	}
	var view vk.ImageView
	ret := vk.CreateImageView(d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    tex.image,
		ViewType: vk.ImageViewType2d,
		Format:   vkFormat(tex.desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: colorRange,
	}, nil, &view)
	if isError(ret) {
		return d.check(ret), nil
	}
	tex.AddRef()
	v := &RenderTargetView{tex: tex, view: view, framebuffers: make(map[vk.RenderPass]vk.Framebuffer)}
	d.child(&v.object, v.destroy)
	return driver.StatusOK, v
}

func (d *Device) load(bytecode []byte, stage driver.ShaderStage) (driver.Status, *module) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	bc, err := shader.Decode(bytecode)
	if err != nil || bc.Profile.Stage != stage || len(bc.SPIRV) == 0 {
		d.log.WithError(err).WithField("stage", stage).Warn("rejected shader bytecode")
		return driver.ErrInvalidArg, nil
	}
	handle, err := LoadShaderModule(d.handle, bc.SPIRV)
	if err != nil {
		d.log.WithError(err).Warn("create shader module")
		return driver.ErrInvalidArg, nil
	}
	return driver.StatusOK, &module{device: d, handle: handle, code: bc}
}

// LoadShaderModule creates a shader module from SPIR-V bytes.
func LoadShaderModule(device vk.Device, data []byte) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    sliceUint32(data),
	}, nil, &module)
	if isError(ret) {
		return vk.NullShaderModule, NewError(ret)
	}
	return module, nil
}

func (d *Device) CreateVertexShader(bytecode []byte) (driver.Status, driver.VertexShader) {
	status, m := d.load(bytecode, driver.StageVertex)
	if m == nil {
		return status, nil
	}
	s := &VertexShader{module: m}
	d.child(&s.object, func() { m.destroy(s) })
	return status, s
}

func (d *Device) CreatePixelShader(bytecode []byte) (driver.Status, driver.PixelShader) {
	status, m := d.load(bytecode, driver.StagePixel)
	if m == nil {
		return status, nil
	}
	s := &PixelShader{module: m}
	d.child(&s.object, func() { m.destroy(s) })
	return status, s
}

// CreateInputLayout checks elements against the input signature carried in
// the vertex bytecode.
func (d *Device) CreateInputLayout(elements []driver.InputElementDesc, bytecode []byte) (driver.Status, driver.InputLayout) {
	if d.lost() {
		return driver.ErrDeviceRemoved, nil
	}
	bc, err := shader.Decode(bytecode)
	if err != nil || bc.Profile.Stage != driver.StageVertex {
		return driver.ErrInvalidArg, nil
	}
	if err := shader.ValidateLayout(elements, bc.Inputs); err != nil {
		d.log.WithError(err).Warn("input layout rejected")
		return driver.ErrInvalidArg, nil
	}
	for _, el := range elements {
		if el.InputSlot >= vertexSlots || vkFormat(el.Format) == vk.FormatUndefined {
			return driver.ErrInvalidArg, nil
		}
		if el.InputSlotClass == driver.InputPerInstanceData && el.InstanceDataStepRate > 1 {
			d.log.WithField("semantic", el.SemanticName).Warn("instance step rates above 1 are not supported")
			return driver.ErrUnsupported, nil
		}
	}
	l := &InputLayout{
		elements: append([]driver.InputElementDesc(nil), elements...),
		offsets:  shader.ResolveOffsets(elements),
		inputs:   bc.Inputs,
	}
	d.child(&l.object, func() { d.evict(l) })
	return driver.StatusOK, l
}

// child initializes an object created by d. Children keep d alive until they
// are freed.
func (d *Device) child(o *object, free func()) {
	d.AddRef()
	o.init(d.platform, func() {
		if free != nil {
			free()
		}
		d.Release()
	})
}
