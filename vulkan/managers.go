package vulkan

import vk "github.com/vulkan-go/vulkan"

// FenceManager keeps track of fences which in turn are used to keep track of GPU progress.
// The manager is not thread-safe.
type FenceManager struct {
	device vk.Device
	fences []vk.Fence
	count  uint32
}

func NewFenceManager(device vk.Device) *FenceManager {
	return &FenceManager{
		device: device,
	}
}

// Wait blocks until every outstanding fence has signaled and makes them
// reusable. After it returns it is safe to reuse or delete resources the
// submissions used.
func (f *FenceManager) Wait() vk.Result {
	if f.count == 0 {
		return vk.Success
	}
	ret := vk.WaitForFences(f.device, f.count, f.fences[:f.count], vk.True, vk.MaxUint64)
	vk.ResetFences(f.device, f.count, f.fences[:f.count])
	f.count = 0
	return ret
}

func (f *FenceManager) NewFence() (vk.Fence, error) {
	if f.count < uint32(len(f.fences)) {
		fence := f.fences[f.count]
		f.count++
		return fence, nil
	}
	var fence vk.Fence
	ret := vk.CreateFence(f.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &fence)
	if isError(ret) {
		return fence, NewError(ret)
	}
	f.fences = append(f.fences, fence)
	f.count++
	return fence, nil
}

// Cancel takes back the last fence handed out, for a submission that never
// reached the queue.
func (f *FenceManager) Cancel() {
	if f.count > 0 {
		f.count--
	}
}

func (f *FenceManager) Destroy() {
	f.Wait()
	for i := range f.fences {
		vk.DestroyFence(f.device, f.fences[i], nil)
	}
	f.fences = nil
}

// CommandBufferManager allocates command buffers and recycles them.
// The manager is not thread-safe.
type CommandBufferManager struct {
	device             vk.Device
	pool               vk.CommandPool
	buffers            []vk.CommandBuffer
	commandBufferLevel vk.CommandBufferLevel
	count              uint32
}

// NewCommandBufferManager creates a pool on the queue family graphicsQueueIndex.
// bufferLevel is either vk.CommandBufferLevelPrimary or vk.CommandBufferLevelSecondary.
func NewCommandBufferManager(device vk.Device,
	bufferLevel vk.CommandBufferLevel, graphicsQueueIndex uint32) (*CommandBufferManager, error) {

	var pool vk.CommandPool
	ret := vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: graphicsQueueIndex,
		// ResetCommandBufferBit allows command buffers to be reset individually.
		Flags: vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)

	if isError(ret) {
		return nil, NewError(ret)
	}

	m := &CommandBufferManager{
		pool:               pool,
		device:             device,
		commandBufferLevel: bufferLevel,
	}
	return m, nil
}

// Reset marks every managed command buffer as recyclable. Only call it once
// the buffers have finished executing.
func (c *CommandBufferManager) Reset() {
	c.count = 0
}

func (c *CommandBufferManager) Destroy() {
	if len(c.buffers) > 0 {
		vk.FreeCommandBuffers(c.device, c.pool, uint32(len(c.buffers)), c.buffers)
	}
	vk.DestroyCommandPool(c.device, c.pool, nil)
	c.buffers = nil
}

// NewCommandBuffer returns a fresh or recycled command buffer which is in the reset state.
func (c *CommandBufferManager) NewCommandBuffer() (vk.CommandBuffer, error) {
	if c.count < uint32(len(c.buffers)) {
		buf := c.buffers[c.count]
		c.count++
		ret := vk.ResetCommandBuffer(buf,
			vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))
		if isError(ret) {
			return buf, NewError(ret)
		}
		return buf, nil
	}
	bufs := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(c.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.pool,
		Level:              c.commandBufferLevel,
		CommandBufferCount: 1,
	}, bufs)
	if isError(ret) {
		return nil, NewError(ret)
	}
	c.buffers = append(c.buffers, bufs[0])
	c.count++
	return bufs[0], nil
}
