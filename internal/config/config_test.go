package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/andewx/diesel/driver"
	"github.com/spf13/pflag"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	scene, err := c.Scene()
	if err != nil {
		t.Fatal(err)
	}
	if scene.SwapChain.SwapEffect != driver.SwapEffectFlipDiscard || scene.SwapChain.BufferCount != 2 {
		t.Errorf("swapchain = %+v", scene.SwapChain)
	}
	if scene.ClearColor != [4]float32{0, 0.2, 0.4, 1} || scene.SyncInterval != 1 {
		t.Errorf("scene = %+v", scene)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "diesel.toml", `
backend = "vulkan"
clear_color = [1.0, 0.0, 0.0, 1.0]

[window]
width = 320
height = 240

[swapchain]
swap_effect = "sequential"
buffer_count = 1
sync_interval = 0
`)
	c, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Backend != "vulkan" || c.Window.Width != 320 || c.Window.Title != "diesel" {
		t.Errorf("config = %+v", c)
	}
	scene, err := c.Scene()
	if err != nil {
		t.Fatal(err)
	}
	if scene.SwapChain.SwapEffect != driver.SwapEffectSequential || scene.SyncInterval != 0 {
		t.Errorf("swapchain = %+v sync %d", scene.SwapChain, scene.SyncInterval)
	}
	if scene.ClearColor != [4]float32{1, 0, 0, 1} {
		t.Errorf("clear = %v", scene.ClearColor)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "diesel.toml", "backend = \"vulkan\"\n")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("backend", "soft", "")
	flags.Int("width", 800, "")
	if err := flags.Parse([]string{"--backend", "soft"}); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, flags)
	if err != nil {
		t.Fatal(err)
	}
	if c.Backend != "soft" {
		t.Errorf("backend = %q, want the flag value", c.Backend)
	}
	if c.Window.Width != 800 {
		t.Errorf("width = %d", c.Window.Width)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DIESEL_SWAPCHAIN_SYNC_INTERVAL", "3")
	c, err := Load(writeFile(t, "diesel.toml", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.SwapChain.SyncInterval != 3 {
		t.Errorf("sync_interval = %d", c.SwapChain.SyncInterval)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":      func(c *Config) { c.Backend = "metal" },
		"width":        func(c *Config) { c.Window.Width = 0 },
		"buffers":      func(c *Config) { c.SwapChain.BufferCount = 17 },
		"sync":         func(c *Config) { c.SwapChain.SyncInterval = 5 },
		"effect":       func(c *Config) { c.SwapChain.SwapEffect = "flip" },
		"format":       func(c *Config) { c.SwapChain.Format = "r5g6b5" },
		"clear":        func(c *Config) { c.ClearColor = []float32{0, 0, 0} },
		"capture":      func(c *Config) { c.Capture = "frame.jpg" },
		"log level":    func(c *Config) { c.Log.Level = "loud" },
		"refresh rate": func(c *Config) { c.Soft.RefreshHz = 0 },
	}
	for name, mutate := range cases {
		c := Default()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: invalid config accepted", name)
		}
	}
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	c := Default()
	c.Backend = "d3d11"
	c.Capture = "frame.bmp"
	if err := Write(path, c); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Backend != "d3d11" || got.Capture != "frame.bmp" || len(got.ClearColor) != 4 || got.ClearColor[2] != 0.4 {
		t.Errorf("loaded = %+v", got)
	}
}

func TestSceneShaderFile(t *testing.T) {
	c := Default()
	c.Shader.Path = writeFile(t, "custom.wgsl", "// custom")
	scene, err := c.Scene()
	if err != nil {
		t.Fatal(err)
	}
	if scene.VertexSource != "// custom" || scene.PixelSource != "// custom" {
		t.Errorf("sources = %q, %q", scene.VertexSource, scene.PixelSource)
	}
	c.Shader.Path = filepath.Join(t.TempDir(), "missing.wgsl")
	if _, err := c.Scene(); err == nil {
		t.Error("missing shader file accepted")
	}
}

func TestPrecedence(t *testing.T) {
	path := writeFile(t, "diesel.toml", "[window]\nwidth = 640\n")
	t.Setenv("DIESEL_WINDOW_WIDTH", "1024")

	c, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Window.Width != 1024 {
		t.Errorf("env over file: width = %d", c.Window.Width)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("width", 800, "")
	if err := flags.Parse([]string{"--width", "320"}); err != nil {
		t.Fatal(err)
	}
	if c, err = Load(path, flags); err != nil {
		t.Fatal(err)
	}
	if c.Window.Width != 320 {
		t.Errorf("flag over env: width = %d", c.Window.Width)
	}
}
