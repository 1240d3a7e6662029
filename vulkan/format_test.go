package vulkan

import (
	"testing"

	"github.com/andewx/diesel/driver"
	vk "github.com/vulkan-go/vulkan"
)

func TestFormats(t *testing.T) {
	cases := map[driver.Format]vk.Format{
		driver.FormatR8G8B8A8Unorm:  vk.FormatR8g8b8a8Unorm,
		driver.FormatB8G8R8A8Unorm:  vk.FormatB8g8r8a8Unorm,
		driver.FormatR32G32B32Float: vk.FormatR32g32b32Sfloat,
		driver.FormatR32G32Float:    vk.FormatR32g32Sfloat,
		driver.Format(9999):         vk.FormatUndefined,
	}
	for in, want := range cases {
		if got := vkFormat(in); got != want {
			t.Errorf("vkFormat(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestTopologies(t *testing.T) {
	if got, ok := vkTopology(driver.TopologyTriangleStrip); !ok || got != vk.PrimitiveTopologyTriangleStrip {
		t.Errorf("triangle strip = %d, %v", got, ok)
	}
	if _, ok := vkTopology(driver.TopologyUndefined); ok {
		t.Error("undefined topology mapped")
	}
}

func TestViewportFlipsY(t *testing.T) {
	vp := vkViewport(driver.Viewport{TopLeftX: 10, TopLeftY: 20, Width: 640, Height: 480, MaxDepth: 1})
	if vp.X != 10 || vp.Y != 500 || vp.Width != 640 || vp.Height != -480 || vp.MaxDepth != 1 {
		t.Errorf("viewport = %+v", vp)
	}
}

func TestScissor(t *testing.T) {
	r := vkScissor(driver.Viewport{TopLeftX: -10, TopLeftY: 5, Width: 100, Height: 50})
	if r.Offset.X != 0 || r.Offset.Y != 5 || r.Extent.Width != 90 || r.Extent.Height != 50 {
		t.Errorf("scissor = %+v", r)
	}
	c := clampRect(r, vk.Extent2D{Width: 64, Height: 32})
	if c.Offset.X != 0 || c.Offset.Y != 5 || c.Extent.Width != 64 || c.Extent.Height != 27 {
		t.Errorf("clamped = %+v", c)
	}
	c = clampRect(vk.Rect2D{Offset: vk.Offset2D{X: 80, Y: 0}, Extent: vk.Extent2D{Width: 10, Height: 10}},
		vk.Extent2D{Width: 64, Height: 32})
	if c.Extent.Width != 0 {
		t.Errorf("offscreen scissor = %+v", c)
	}
}

func TestUsageBits(t *testing.T) {
	b := bufferUsage(driver.BindVertexBuffer)
	if b&vk.BufferUsageVertexBufferBit == 0 || b&vk.BufferUsageTransferSrcBit == 0 || b&vk.BufferUsageIndexBufferBit != 0 {
		t.Errorf("buffer usage = %#x", b)
	}
	i := imageUsage(driver.BindRenderTarget)
	if i&vk.ImageUsageColorAttachmentBit == 0 || i&vk.ImageUsageSampledBit != 0 {
		t.Errorf("image usage = %#x", i)
	}
	if vkInputRate(driver.InputPerInstanceData) != vk.VertexInputRateInstance {
		t.Error("instance rate")
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[vk.Result]driver.Status{
		vk.Success:                  driver.StatusOK,
		vk.Suboptimal:               driver.StatusOK,
		vk.Timeout:                  driver.ErrWasStillDrawing,
		vk.ErrorOutOfDeviceMemory:   driver.ErrOutOfMemory,
		vk.ErrorDeviceLost:          driver.ErrDeviceRemoved,
		vk.ErrorOutOfDate:           driver.StatusOccluded,
		vk.ErrorSurfaceLost:         driver.ErrInvalidCall,
		vk.ErrorExtensionNotPresent: driver.ErrUnsupported,
		vk.Incomplete:               driver.ErrFail,
	}
	for ret, want := range cases {
		if got := statusOf(ret); got != want {
			t.Errorf("statusOf(%d) = %v, want %v", ret, got, want)
		}
	}
	if NewError(vk.Success) != nil {
		t.Error("NewError(Success) != nil")
	}
	if err := NewError(vk.ErrorDeviceLost); err == nil {
		t.Error("NewError(DeviceLost) == nil")
	}
}

func TestCheckExisting(t *testing.T) {
	actual := []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00"}
	got, missing := checkExisting(actual, []string{"VK_KHR_surface", "VK_EXT_debug_report\x00"})
	if missing != 1 || len(got) != 1 || got[0] != "VK_KHR_surface\x00" {
		t.Errorf("checkExisting = %q, %d", got, missing)
	}
	if !has(got, "VK_KHR_surface") || has(got, "VK_EXT_debug_report") {
		t.Error("has")
	}
	if safeString("a\x00") != "a\x00" || safeString("a") != "a\x00" {
		t.Error("safeString")
	}
}

func TestFindMemoryType(t *testing.T) {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = 3
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	props.MemoryTypes[2].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

	host := vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	if i, ok := FindRequiredMemoryType(props, 0x7, host); !ok || i != 2 {
		t.Errorf("host coherent = %d, %v", i, ok)
	}
	if _, ok := FindRequiredMemoryType(props, 0x3, host); ok {
		t.Error("found a type outside typeBits")
	}
	if i, ok := FindRequiredMemoryTypeFallback(props, 0x2, vk.MemoryPropertyDeviceLocalBit); !ok || i != 1 {
		t.Errorf("fallback = %d, %v", i, ok)
	}
}

func TestSliceUint32(t *testing.T) {
	words := sliceUint32([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	if len(words) != 2 || words[0] != 0x07230203 || words[1] != 1 {
		t.Errorf("words = %#x", words)
	}
	if sliceUint32([]byte{1, 2}) != nil {
		t.Error("short input")
	}
}
