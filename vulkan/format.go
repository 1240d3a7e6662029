package vulkan

import (
	"github.com/andewx/diesel/driver"
	vk "github.com/vulkan-go/vulkan"
)

var vkFormats = map[driver.Format]vk.Format{
	driver.FormatR32G32B32A32Float: vk.FormatR32g32b32a32Sfloat,
	driver.FormatR32G32B32A32Uint:  vk.FormatR32g32b32a32Uint,
	driver.FormatR32G32B32Float:    vk.FormatR32g32b32Sfloat,
	driver.FormatR32G32B32Uint:     vk.FormatR32g32b32Uint,
	driver.FormatR32G32Float:       vk.FormatR32g32Sfloat,
	driver.FormatR32G32Uint:        vk.FormatR32g32Uint,
	driver.FormatR8G8B8A8Unorm:     vk.FormatR8g8b8a8Unorm,
	driver.FormatR32Float:          vk.FormatR32Sfloat,
	driver.FormatR32Uint:           vk.FormatR32Uint,
	driver.FormatB8G8R8A8Unorm:     vk.FormatB8g8r8a8Unorm,
}

// vkFormat returns vk.FormatUndefined for formats with no Vulkan equivalent.
func vkFormat(f driver.Format) vk.Format {
	if v, ok := vkFormats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

var vkTopologies = map[driver.PrimitiveTopology]vk.PrimitiveTopology{
	driver.TopologyPointList:     vk.PrimitiveTopologyPointList,
	driver.TopologyLineList:      vk.PrimitiveTopologyLineList,
	driver.TopologyLineStrip:     vk.PrimitiveTopologyLineStrip,
	driver.TopologyTriangleList:  vk.PrimitiveTopologyTriangleList,
	driver.TopologyTriangleStrip: vk.PrimitiveTopologyTriangleStrip,
}

func vkTopology(t driver.PrimitiveTopology) (vk.PrimitiveTopology, bool) {
	v, ok := vkTopologies[t]
	return v, ok
}

func vkInputRate(c driver.InputClassification) vk.VertexInputRate {
	if c == driver.InputPerInstanceData {
		return vk.VertexInputRateInstance
	}
	return vk.VertexInputRateVertex
}

// vkViewport flips y so clip space keeps +y pointing up, as it does on the
// other platforms. This needs Vulkan 1.1 or VK_KHR_maintenance1.
func vkViewport(v driver.Viewport) vk.Viewport {
	return vk.Viewport{
		X:        v.TopLeftX,
		Y:        v.TopLeftY + v.Height,
		Width:    v.Width,
		Height:   -v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}
}

func vkScissor(v driver.Viewport) vk.Rect2D {
	x, y := max(v.TopLeftX, 0), max(v.TopLeftY, 0)
	return vk.Rect2D{
		Offset: vk.Offset2D{X: int32(x), Y: int32(y)},
		Extent: vk.Extent2D{Width: uint32(max(v.TopLeftX+v.Width-x, 0)), Height: uint32(max(v.TopLeftY+v.Height-y, 0))},
	}
}

// bufferUsage derives Vulkan usage bits from bind flags. Every buffer can be
// a copy source and destination so CopyResource works on any pair.
func bufferUsage(bind driver.BindFlag) vk.BufferUsageFlagBits {
	usage := vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	if bind&driver.BindVertexBuffer != 0 {
		usage |= vk.BufferUsageVertexBufferBit
	}
	if bind&driver.BindIndexBuffer != 0 {
		usage |= vk.BufferUsageIndexBufferBit
	}
	if bind&driver.BindConstantBuffer != 0 {
		usage |= vk.BufferUsageUniformBufferBit
	}
	if bind&driver.BindShaderResource != 0 {
		usage |= vk.BufferUsageStorageBufferBit
	}
	return usage
}

func imageUsage(bind driver.BindFlag) vk.ImageUsageFlagBits {
	usage := vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	if bind&driver.BindRenderTarget != 0 {
		usage |= vk.ImageUsageColorAttachmentBit
	}
	if bind&driver.BindShaderResource != 0 {
		usage |= vk.ImageUsageSampledBit
	}
	return usage
}
