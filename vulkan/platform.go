// Package vulkan implements the diesel platform contract on Vulkan through
// vulkan-go. The immediate context records each call into a one-shot command
// buffer and waits for it, so resources never outlive the work using them.
package vulkan

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Options struct {
	AppName string
	// Validation enables the Khronos validation layer and routes its reports
	// to the log.
	Validation bool
	// ProcAddr is vkGetInstanceProcAddr as handed out by the windowing
	// library. Nil loads the system Vulkan loader.
	ProcAddr unsafe.Pointer
	// InstanceExtensions the window system needs for surfaces.
	InstanceExtensions []string
	Log                logrus.FieldLogger
}

// SurfaceWindow is a window a Vulkan surface can be created for. Windows
// passed to CreateSwapChainForHwnd must implement it.
type SurfaceWindow interface {
	driver.Window
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

type Platform struct {
	opts Options
	log  logrus.FieldLogger
	live atomic.Int64

	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	layers        []string

	mu      sync.Mutex
	devices []*Device
}

func init() {
	driver.Register("vulkan", func() (driver.Platform, error) {
		return New(Options{})
	})
}

// New loads Vulkan and creates the instance.
func New(opts Options) (p *Platform, err error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.AppName == "" {
		opts.AppName = "diesel"
	}
	p = &Platform{opts: opts, log: log.WithField("driver", "vulkan")}

	if opts.ProcAddr != nil {
		vk.SetGetInstanceProcAddr(opts.ProcAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "init vulkan")
	}

	wanted := append(safeStrings(opts.InstanceExtensions), "VK_KHR_surface\x00")
	if opts.Validation {
		wanted = append(wanted, "VK_EXT_debug_report\x00")
	}
	actual, err := InstanceExtensions()
	if err != nil {
		return nil, err
	}
	extensions, missing := checkExisting(actual, wanted)
	if missing > 0 {
		p.log.WithField("missing", missing).Warn("instance extensions not available")
	}
	if opts.Validation {
		layers, err := ValidationLayers()
		if err != nil {
			return nil, err
		}
		if p.layers, missing = checkExisting(layers, []string{validationLayer}); missing > 0 {
			p.log.Warn("validation layer not installed")
		}
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(opts.AppName),
			PEngineName:        "diesel\x00",
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(p.layers)),
		PpEnabledLayerNames:     p.layers,
	}, nil, &instance)
	if isError(ret) {
		return nil, errors.Wrap(NewError(ret), "create instance")
	}
	p.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "init instance")
	}

	if opts.Validation && has(extensions, "VK_EXT_debug_report") {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: p.debugReport,
		}, nil, &p.debugCallback)
		if isError(ret) {
			p.log.WithError(NewError(ret)).Warn("debug report callback unavailable")
		}
	}
	p.log.WithField("extensions", len(extensions)).Debug("instance created")
	return p, nil
}

func has(list []string, name string) bool {
	for _, s := range list {
		if s == safeString(name) {
			return true
		}
	}
	return false
}

func (p *Platform) Name() string { return "vulkan" }

// Instance is the Vulkan instance surfaces are created against.
func (p *Platform) Instance() vk.Instance { return p.instance }

// LiveObjects counts objects whose reference count has not yet dropped to zero.
func (p *Platform) LiveObjects() int { return int(p.live.Load()) }

// Destroy tears down the instance. Every device object must be released first.
func (p *Platform) Destroy() {
	if n := p.LiveObjects(); n > 0 {
		p.log.WithField("live", n).Warn("destroying instance with live objects")
	}
	if p.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(p.instance, p.debugCallback, nil)
		p.debugCallback = vk.NullDebugReportCallback
	}
	if p.instance != nil {
		vk.DestroyInstance(p.instance, nil)
		p.instance = nil
	}
}

func (p *Platform) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	entry := p.log.WithFields(logrus.Fields{"layer": pLayerPrefix, "code": messageCode})
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		entry.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		entry.Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		entry.WithField("performance", true).Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		entry.Debug(pMessage)
	default:
		entry.Info(pMessage)
	}
	return vk.Bool32(vk.False)
}

// CreateDevice picks the first GPU with a graphics queue, preferring
// discrete ones, and creates a device with one queue on that family.
func (p *Platform) CreateDevice(flags driver.CreateDeviceFlag) (driver.Status, driver.Device, driver.DeviceContext) {
	gpu, family, err := p.selectGPU()
	if err != nil {
		p.log.WithError(err).Warn("no usable GPU")
		return driver.ErrUnsupported, nil, nil
	}
	dev, status := newDevice(p, gpu, family, flags)
	if status.Failed() {
		return status, nil, nil
	}
	ctx := newContext(dev)

	p.mu.Lock()
	p.devices = append(p.devices, dev)
	p.mu.Unlock()
	return driver.StatusOK, dev, ctx
}

func (p *Platform) forget(dev *Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, d := range p.devices {
		if d == dev {
			p.devices = append(p.devices[:i], p.devices[i+1:]...)
			return
		}
	}
}

func (p *Platform) selectGPU() (vk.PhysicalDevice, uint32, error) {
	var gpuCount uint32
	if ret := vk.EnumeratePhysicalDevices(p.instance, &gpuCount, nil); isError(ret) {
		return nil, 0, NewError(ret)
	}
	if gpuCount == 0 {
		return nil, 0, errors.New("no GPU devices found")
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	if ret := vk.EnumeratePhysicalDevices(p.instance, &gpuCount, gpus); isError(ret) {
		return nil, 0, NewError(ret)
	}

	var (
		best       vk.PhysicalDevice
		bestFamily uint32
		bestScore  = -1
	)
	for _, gpu := range gpus {
		family, ok := graphicsFamily(gpu)
		if !ok {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		score := 0
		switch props.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			score = 2
		case vk.PhysicalDeviceTypeIntegratedGpu:
			score = 1
		}
		if score > bestScore {
			best, bestFamily, bestScore = gpu, family, score
		}
	}
	if bestScore < 0 {
		return nil, 0, errors.New("no GPU with a graphics queue")
	}
	return best, bestFamily, nil
}

func graphicsFamily(gpu vk.PhysicalDevice) (uint32, bool) {
	var queueCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &queueCount, nil)
	queueProperties := make([]vk.QueueFamilyProperties, queueCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &queueCount, queueProperties)
	for i := uint32(0); i < queueCount; i++ {
		queueProperties[i].Deref()
		if queueProperties[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return i, true
		}
	}
	return 0, false
}

func (p *Platform) CreateFactory() (driver.Status, driver.Factory) {
	f := &Factory{}
	f.init(p, nil)
	return driver.StatusOK, f
}

// Compile builds diesel bytecode carrying a SPIR-V module for the entry
// point.
func (p *Platform) Compile(source []byte, sourceName, entryPoint, target string, flags driver.CompileFlag) (driver.Status, driver.Blob, driver.Blob) {
	bc, _, err := shader.Compile(string(source), sourceName, entryPoint, target, shader.Options{SPIRV: true})
	if err != nil {
		p.log.WithError(err).WithField("entry", entryPoint).Debug("compile failed")
		return driver.ErrFail, nil, newBlob(p, []byte(err.Error()))
	}
	return driver.StatusOK, newBlob(p, bc.Encode()), nil
}
