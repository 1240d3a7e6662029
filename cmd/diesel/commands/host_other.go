//go:build !windows

package commands

import (
	"github.com/andewx/diesel/internal/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func openD3D11(cfg *config.Config, log *logrus.Logger) (*host, error) {
	return nil, errors.New("the d3d11 backend needs windows")
}
