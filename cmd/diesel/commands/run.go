package commands

import (
	"github.com/andewx/diesel"
	"github.com/andewx/diesel/internal/config"
	"github.com/andewx/diesel/internal/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xlab/closer"
)

func run(cmd *cobra.Command, args []string) error {
	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	log, logFile, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	closer.Bind(func() { logFile.Close() })

	h, err := openHost(cfg, log)
	if err != nil {
		return errors.Wrapf(err, "open %s", cfg.Backend)
	}
	scene, err := cfg.Scene()
	if err != nil {
		h.close()
		return err
	}
	r := diesel.NewRenderer(h.platform, h.window, scene, log)
	teardown := func() {
		r.Release()
		h.close()
	}
	closer.Bind(teardown)

	return render(r, h, cfg, log, teardown)
}

// render draws and presents the first frame, shows the window and then idles
// in the message loop until the window closes. Any renderer failure is
// fatal.
func render(r *diesel.Renderer, h *host, cfg *config.Config, log logrus.FieldLogger, teardown func()) error {
	if err := r.Init(); err != nil {
		diesel.Fatal(log, err, teardown)
		return err
	}
	if err := r.Draw(); err != nil {
		diesel.Fatal(log, err, teardown)
		return err
	}
	if cfg.Capture != "" {
		img, err := r.Capture()
		if err != nil {
			diesel.Fatal(log, err, teardown)
			return err
		}
		if err := saveImage(cfg.Capture, img); err != nil {
			return err
		}
		log.WithField("file", cfg.Capture).Info("frame captured")
	}
	if err := r.Present(); err != nil {
		diesel.Fatal(log, err, teardown)
		return err
	}
	h.show()
	log.WithField("frames", r.Frames()).Info("first frame presented")

	for h.wait() {
	}
	log.Debug("window closed")
	return nil
}
