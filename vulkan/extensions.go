package vulkan

import (
	"strings"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// InstanceExtensions gets a list of instance extensions available on the platform.
func InstanceExtensions() (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	orPanic(NewError(ret))
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, list)
	orPanic(NewError(ret))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, err
}

// DeviceExtensions gets a list of extensions available on the provided physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	orPanic(NewError(ret))
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)
	orPanic(NewError(ret))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, err
}

// ValidationLayers gets a list of validation layers available on the platform.
func ValidationLayers() (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateInstanceLayerProperties(&count, nil)
	orPanic(NewError(ret))
	list := make([]vk.LayerProperties, count)
	ret = vk.EnumerateInstanceLayerProperties(&count, list)
	orPanic(NewError(ret))
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, err
}

// checkExisting returns the wanted names that are present in actual, null
// terminated, and how many were missing.
func checkExisting(actual, wanted []string) (existing []string, missing int) {
	have := make(map[string]bool, len(actual))
	for _, name := range actual {
		have[strings.TrimRight(name, "\x00")] = true
	}
	for _, name := range wanted {
		if have[strings.TrimRight(name, "\x00")] {
			existing = append(existing, safeString(name))
		} else {
			missing++
		}
	}
	return existing, missing
}

func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reinterprets SPIR-V bytes as words.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// FindRequiredMemoryType returns the first memory type allowed by typeBits
// that has every flag in required.
func FindRequiredMemoryType(props vk.PhysicalDeviceMemoryProperties, typeBits uint32,
	required vk.MemoryPropertyFlagBits) (uint32, bool) {

	for i := uint32(0); i < props.MemoryTypeCount && i < vk.MaxMemoryTypes; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		props.MemoryTypes[i].Deref()
		flags := props.MemoryTypes[i].PropertyFlags
		if flags&vk.MemoryPropertyFlags(required) == vk.MemoryPropertyFlags(required) {
			return i, true
		}
	}
	return 0, false
}

// FindRequiredMemoryTypeFallback prefers required and falls back to any type
// typeBits allows.
func FindRequiredMemoryTypeFallback(props vk.PhysicalDeviceMemoryProperties, typeBits uint32,
	required vk.MemoryPropertyFlagBits) (uint32, bool) {

	if i, ok := FindRequiredMemoryType(props, typeBits, required); ok {
		return i, true
	}
	return FindRequiredMemoryType(props, typeBits, 0)
}
