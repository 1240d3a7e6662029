//go:build windows

package commands

import (
	"github.com/andewx/diesel/d3d11"
	"github.com/andewx/diesel/internal/config"
	"github.com/andewx/diesel/internal/win32"
	"github.com/sirupsen/logrus"
)

func openD3D11(cfg *config.Config, log *logrus.Logger) (*host, error) {
	p, err := d3d11.New(d3d11.Options{Log: log})
	if err != nil {
		return nil, err
	}
	w, err := win32.New(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return nil, err
	}
	return &host{
		platform: p,
		window:   w,
		show:     w.Show,
		wait:     w.Wait,
		cleanup:  []func(){w.Destroy},
	}, nil
}
