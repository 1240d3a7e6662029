package commands

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/andewx/diesel"
	"github.com/andewx/diesel/internal/config"
	"github.com/andewx/diesel/soft"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/bmp"
)

func testLogger() (*logrus.Logger, *int) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	code := -1
	log.ExitFunc = func(c int) { code = c }
	return log, &code
}

func smallConfig(t *testing.T, capture string) *config.Config {
	cfg := config.Default()
	cfg.Window.Width, cfg.Window.Height = 64, 48
	cfg.Soft.RefreshHz = 1000
	if capture != "" {
		cfg.Capture = filepath.Join(t.TempDir(), capture)
	}
	return cfg
}

func decode(t *testing.T, path string, dec func(io.Reader) (image.Image, error)) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := dec(f)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestRenderSoftCapture(t *testing.T) {
	for _, ext := range []string{"frame.png", "frame.bmp"} {
		cfg := smallConfig(t, ext)
		log, code := testLogger()
		h, err := openHost(cfg, log)
		if err != nil {
			t.Fatal(err)
		}
		scene, err := cfg.Scene()
		if err != nil {
			t.Fatal(err)
		}
		r := diesel.NewRenderer(h.platform, h.window, scene, log)
		if err := render(r, h, cfg, log, func() {}); err != nil {
			t.Fatal(err)
		}
		if *code != -1 {
			t.Fatalf("exit %d", *code)
		}
		if r.Frames() != 1 {
			t.Errorf("frames = %d", r.Frames())
		}
		r.Release()
		if n := h.platform.(*soft.Platform).LiveObjects(); n != 0 {
			t.Errorf("%d live objects", n)
		}

		dec := png.Decode
		if filepath.Ext(ext) == ".bmp" {
			dec = bmp.Decode
		}
		img := decode(t, cfg.Capture, dec)
		if r, g, b, _ := img.At(32, 24).RGBA(); r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
			t.Errorf("%s: center = %d %d %d, want white", ext, r>>8, g>>8, b>>8)
		}
		if r, g, b, _ := img.At(0, 0).RGBA(); r>>8 != 0 || g>>8 != 51 || b>>8 != 102 {
			t.Errorf("%s: corner = %d %d %d, want the clear color", ext, r>>8, g>>8, b>>8)
		}
	}
}

func TestRenderFailureIsFatal(t *testing.T) {
	cfg := smallConfig(t, "")
	log, code := testLogger()
	p := soft.New(soft.Options{NoHardware: true, Log: log})
	h := &host{
		platform: p,
		window:   &soft.Window{Width: 64, Height: 48},
		show:     func() { t.Error("window shown after a failed start") },
		wait:     func() bool { return false },
	}
	r := diesel.NewRenderer(p, h.window, diesel.DefaultScene(), log)
	tornDown := false
	err := render(r, h, cfg, log, func() {
		r.Release()
		tornDown = true
	})
	if err == nil {
		t.Fatal("render succeeded without hardware")
	}
	if *code != 1 || !tornDown {
		t.Errorf("exit code %d, torn down %v", *code, tornDown)
	}
	if r.Stage() != diesel.StageUninitialized {
		t.Errorf("stage = %s", r.Stage())
	}
}

func TestUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "metal"
	log, _ := testLogger()
	if _, err := openHost(cfg, log); err == nil {
		t.Error("unknown backend opened")
	}
}

func TestBackendsMatchRegistry(t *testing.T) {
	log, _ := testLogger()
	for name := range openers {
		if registered(name) {
			continue
		}
		cfg := config.Default()
		cfg.Backend = name
		_, err := openHost(cfg, log)
		if err == nil || !strings.Contains(err.Error(), "not built") {
			t.Errorf("%s: %v", name, err)
		}
	}
	if runtime.GOOS != "windows" && registered("d3d11") {
		t.Error("d3d11 registered off windows")
	}
}
