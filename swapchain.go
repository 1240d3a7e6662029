package diesel

import (
	"github.com/andewx/diesel/driver"
)

// Factory creates swapchains. It must exist before any swapchain does.
type Factory struct {
	ref *Ref[driver.Factory]
}

func CreateFactory(p driver.Platform) (*Factory, error) {
	status, raw := p.CreateFactory()
	return Wrap("create factory", status, raw, func(r *Ref[driver.Factory]) *Factory {
		return &Factory{ref: r}
	})
}

func (f *Factory) Release() { f.ref.Release() }

// CreateSwapChainForWindow binds a swapchain to window. The caller picks the
// swap effect: flip effects need a newer platform, sequential works anywhere.
func (f *Factory) CreateSwapChainForWindow(dev *Device, window driver.Window, desc *driver.SwapChainDesc1) (*SwapChain, error) {
	status, raw := f.ref.Get().CreateSwapChainForHwnd(dev.ref.Get(), window, desc)
	return Wrap("create swapchain", status, raw, func(r *Ref[driver.SwapChain]) *SwapChain {
		return &SwapChain{ref: r}
	})
}

type SwapChain struct {
	ref *Ref[driver.SwapChain]
}

func (s *SwapChain) Release() { s.ref.Release() }

func (s *SwapChain) Desc() driver.SwapChainDesc1 {
	return s.ref.Get().Desc()
}

// GetBuffer returns back buffer index, which must be below BufferCount.
func (s *SwapChain) GetBuffer(index uint32) (*Texture2D, error) {
	sc := s.ref.Get()
	if n := sc.Desc().BufferCount; index >= n {
		return nil, &Error{Op: "get buffer", Status: driver.ErrInvalidCall, Detail: "index beyond buffer count"}
	}
	status, raw := sc.GetBuffer(index)
	return Wrap("get buffer", status, raw, func(r *Ref[driver.Texture2D]) *Texture2D {
		return &Texture2D{ref: r}
	})
}

// Present shows the current back buffer. A sync interval of n waits for n
// vertical blanks, 0 presents immediately. An occluded window is not an
// error; a lost device or window is.
func (s *SwapChain) Present(syncInterval uint32, flags driver.PresentFlag) error {
	return WrapUnit("present", s.ref.Get().Present(syncInterval, flags))
}
