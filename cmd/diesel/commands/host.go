package commands

import (
	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/config"
	"github.com/andewx/diesel/internal/display"
	"github.com/andewx/diesel/soft"
	"github.com/andewx/diesel/vulkan"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// host is a platform together with the window it presents into.
type host struct {
	platform driver.Platform
	window   driver.Window
	// show makes the window visible after the first present.
	show func()
	// wait blocks for the next window event and reports whether the window
	// is still open.
	wait    func() bool
	cleanup []func()
}

// close runs the cleanups in reverse order. Later calls do nothing.
func (h *host) close() {
	for i := len(h.cleanup) - 1; i >= 0; i-- {
		h.cleanup[i]()
	}
	h.cleanup = nil
}

type opener func(cfg *config.Config, log *logrus.Logger) (*host, error)

var openers = map[string]opener{
	"soft":   openSoft,
	"vulkan": openVulkan,
	"d3d11":  openD3D11,
}

func openHost(cfg *config.Config, log *logrus.Logger) (*host, error) {
	open, ok := openers[cfg.Backend]
	if !ok {
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
	if !registered(cfg.Backend) {
		return nil, errors.Errorf("backend %q is not built into this binary (have %v)", cfg.Backend, driver.Platforms())
	}
	return open(cfg, log)
}

// registered reports whether a platform called name registered itself with
// the driver package on this build.
func registered(name string) bool {
	for _, n := range driver.Platforms() {
		if n == name {
			return true
		}
	}
	return false
}

// openSoft renders offscreen. There is no window to wait on, so the run ends
// after the first frame.
func openSoft(cfg *config.Config, log *logrus.Logger) (*host, error) {
	p := soft.New(soft.Options{RefreshRate: cfg.Soft.RefreshHz, Log: log})
	w := &soft.Window{Width: cfg.Window.Width, Height: cfg.Window.Height}
	return &host{
		platform: p,
		window:   w,
		show:     func() {},
		wait:     func() bool { return false },
		cleanup: []func(){func() {
			if n := p.LiveObjects(); n != 0 {
				log.WithField("live", n).Warn("soft objects leaked")
			}
		}},
	}, nil
}

func openVulkan(cfg *config.Config, log *logrus.Logger) (*host, error) {
	if err := display.Init(); err != nil {
		return nil, err
	}
	h := &host{cleanup: []func(){display.Terminate}}
	w, err := display.New(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height, false)
	if err != nil {
		h.close()
		return nil, err
	}
	h.cleanup = append(h.cleanup, w.Destroy)
	p, err := vulkan.New(vulkan.Options{
		AppName:            cfg.Window.Title,
		Validation:         cfg.Vulkan.Validation,
		ProcAddr:           display.ProcAddr(),
		InstanceExtensions: w.InstanceExtensions(),
		Log:                log,
	})
	if err != nil {
		h.close()
		return nil, err
	}
	h.cleanup = append(h.cleanup, p.Destroy)
	h.platform, h.window = p, w
	h.show, h.wait = w.Show, w.Wait
	return h, nil
}
