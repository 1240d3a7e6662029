package soft

import (
	"time"

	"github.com/andewx/diesel/driver"
	"github.com/sirupsen/logrus"
)

const maxBuffers = 16

// Window is an offscreen window for headless rendering.
type Window struct {
	Width, Height int
	Closed        bool
}

func (w *Window) Handle() uintptr                 { return 0 }
func (w *Window) ClientSize() (width, height int) { return w.Width, w.Height }
func (w *Window) Valid() bool                     { return !w.Closed }

type Factory struct {
	object
}

// CreateSwapChainForHwnd creates the buffers of a swapchain bound to window.
// The chain keeps a reference to device until it is released.
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
	d := *desc
	minBuffers := uint32(1)
	if d.SwapEffect.Flip() {
		minBuffers = 2
	}
	switch {
	case d.BufferCount < minBuffers || d.BufferCount > maxBuffers:
		return driver.ErrInvalidCall, nil
	case !d.Format.Renderable():
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

	var bind driver.BindFlag
	if d.BufferUsage&driver.UsageRenderTargetOutput != 0 {
		bind |= driver.BindRenderTarget
	}
	if d.BufferUsage&driver.UsageShaderInput != 0 {
		bind |= driver.BindShaderResource
	}
	p := f.platform
	sc := &SwapChain{desc: d, device: dev, window: window, clock: p.opts.Clock, period: p.RefreshPeriod()}
	for i := uint32(0); i < d.BufferCount; i++ {
		t := newTexture(driver.Texture2DDesc{
			Width:      d.Width,
			Height:     d.Height,
			Format:     d.Format,
			SampleDesc: d.SampleDesc,
			BindFlags:  bind,
		})
		t.init(p, nil)
		sc.buffers = append(sc.buffers, t)
	}
	sc.front = make([]byte, len(sc.buffers[0].data))
	sc.start = sc.clock.Now()
	dev.AddRef()
	sc.init(p, sc.free)
	p.log.WithFields(logrus.Fields{
		"width":   d.Width,
		"height":  d.Height,
		"buffers": d.BufferCount,
		"flip":    d.SwapEffect.Flip(),
	}).Debug("swapchain created")
	return driver.StatusOK, sc
}

// SwapChain presents into host memory. With a flip effect the buffer contents
// rotate on every present so that buffer 0 is always the next to render.
type SwapChain struct {
	object
	desc    driver.SwapChainDesc1
	device  *Device
	window  driver.Window
	buffers []*Texture2D
	front   []byte

	clock    Clock
	period   time.Duration
	start    time.Time
	presents uint64
}

func (s *SwapChain) free() {
	for _, b := range s.buffers {
		b.Release()
	}
	s.buffers = nil
	s.device.Release()
}

func (s *SwapChain) Desc() driver.SwapChainDesc1 { return s.desc }

// GetBuffer adds a reference to buffer index for the caller.
func (s *SwapChain) GetBuffer(index uint32) (driver.Status, driver.Texture2D) {
	if index >= uint32(len(s.buffers)) {
		return driver.ErrInvalidCall, nil
	}
	if !s.desc.SwapEffect.Flip() && index > 0 {
		// Blit model chains expose only the back buffer for writing.
		return driver.ErrInvalidCall, nil
	}
	b := s.buffers[index]
	b.AddRef()
	return driver.StatusOK, b
}

// Present waits for syncInterval simulated vertical blanks and shows buffer 0.
func (s *SwapChain) Present(syncInterval uint32, flags driver.PresentFlag) driver.Status {
	p := s.platform
	if s.device.lost() {
		return driver.ErrDeviceRemoved
	}
	if syncInterval > 4 {
		p.log.WithField("sync", syncInterval).Warn("present interval out of range")
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
	if syncInterval > 0 {
		s.wait(syncInterval)
	}
	copy(s.front, s.buffers[0].data)
	if s.desc.SwapEffect.Flip() {
		first := s.buffers[0].data
		for i := 0; i+1 < len(s.buffers); i++ {
			s.buffers[i].data = s.buffers[i+1].data
		}
		s.buffers[len(s.buffers)-1].data = first
	}
	s.presents++
	p.mu.Lock()
	p.presents++
	p.mu.Unlock()
	return driver.StatusOK
}

// wait blocks until the first vertical blank at least n refresh periods after
// the call, so a late frame still spans n full periods.
func (s *SwapChain) wait(n uint32) {
	now := s.clock.Now()
	earliest := now.Add(time.Duration(n) * s.period)
	blanks := (earliest.Sub(s.start) + s.period - 1) / s.period
	target := s.start.Add(blanks * s.period)
	if d := target.Sub(now); d > 0 {
		s.clock.Sleep(d)
	}
}

// Front returns a copy of the image on the simulated display.
func (s *SwapChain) Front() []byte {
	return append([]byte(nil), s.front...)
}

// PresentCount is the number of completed presents on s.
func (s *SwapChain) PresentCount() uint64 { return s.presents }
