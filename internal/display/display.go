// Package display opens GLFW windows that Vulkan surfaces can be created for.
// GLFW must be used from the main OS thread.
package display

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Init initializes GLFW and checks for a Vulkan loader.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: vulkan not supported")
	}
	return nil
}

func Terminate() { glfw.Terminate() }

// ProcAddr is vkGetInstanceProcAddr as loaded by GLFW.
func ProcAddr() unsafe.Pointer { return glfw.GetVulkanGetInstanceProcAddress() }

// Display is a window without a client API. It stays hidden until Show.
type Display struct {
	window *glfw.Window
	shown  bool
}

func New(title string, width, height int, resizable bool) (*Display, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.False)
	if resizable {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Resizable, glfw.False)
	}
	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}
	return &Display{window: window}, nil
}

// Handle identifies the window; it is the GLFW window pointer.
func (d *Display) Handle() uintptr { return uintptr(unsafe.Pointer(d.window.Handle())) }

func (d *Display) ClientSize() (width, height int) {
	if d.window.GetAttrib(glfw.Iconified) == glfw.True {
		return 0, 0
	}
	return d.window.GetFramebufferSize()
}

func (d *Display) Valid() bool { return !d.window.ShouldClose() }

// InstanceExtensions lists what the instance needs for surfaces on this
// window system.
func (d *Display) InstanceExtensions() []string {
	return d.window.GetRequiredInstanceExtensions()
}

func (d *Display) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := d.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "create window surface")
	}
	return vk.SurfaceFromPointer(ptr), nil
}

// Show makes the window visible once there is something to display.
func (d *Display) Show() {
	if !d.shown {
		d.window.Show()
		d.shown = true
	}
}

// Poll processes pending window events.
func (d *Display) Poll() { glfw.PollEvents() }

// Wait blocks until an event arrives and reports whether the window is still
// open.
func (d *Display) Wait() bool {
	glfw.WaitEvents()
	return !d.window.ShouldClose()
}

func (d *Display) Close() { d.window.SetShouldClose(true) }

func (d *Display) Destroy() { d.window.Destroy() }
