// Package config loads the diesel configuration from TOML, environment and
// command line flags.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/andewx/diesel"
	"github.com/andewx/diesel/driver"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Backend    string          `mapstructure:"backend" toml:"backend"`
	Window     WindowConfig    `mapstructure:"window" toml:"window"`
	SwapChain  SwapChainConfig `mapstructure:"swapchain" toml:"swapchain"`
	Shader     ShaderConfig    `mapstructure:"shader" toml:"shader"`
	ClearColor []float32       `mapstructure:"clear_color" toml:"clear_color"`
	// Capture writes the first frame to a .png or .bmp file.
	Capture string       `mapstructure:"capture" toml:"capture"`
	Log     LogConfig    `mapstructure:"log" toml:"log"`
	Vulkan  VulkanConfig `mapstructure:"vulkan" toml:"vulkan"`
	Soft    SoftConfig   `mapstructure:"soft" toml:"soft"`
}

type WindowConfig struct {
	Width  int    `mapstructure:"width" toml:"width"`
	Height int    `mapstructure:"height" toml:"height"`
	Title  string `mapstructure:"title" toml:"title"`
}

type SwapChainConfig struct {
	BufferCount  uint32 `mapstructure:"buffer_count" toml:"buffer_count"`
	SwapEffect   string `mapstructure:"swap_effect" toml:"swap_effect"`
	SyncInterval uint32 `mapstructure:"sync_interval" toml:"sync_interval"`
	Format       string `mapstructure:"format" toml:"format"`
}

type ShaderConfig struct {
	// Path to a WGSL file holding both entry points. Empty uses the built-in
	// triangle shader.
	Path          string `mapstructure:"path" toml:"path"`
	VertexEntry   string `mapstructure:"vertex_entry" toml:"vertex_entry"`
	PixelEntry    string `mapstructure:"pixel_entry" toml:"pixel_entry"`
	VertexProfile string `mapstructure:"vertex_profile" toml:"vertex_profile"`
	PixelProfile  string `mapstructure:"pixel_profile" toml:"pixel_profile"`
}

type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
	File  string `mapstructure:"file" toml:"file"`
}

type VulkanConfig struct {
	Validation bool `mapstructure:"validation" toml:"validation"`
}

type SoftConfig struct {
	RefreshHz float64 `mapstructure:"refresh_hz" toml:"refresh_hz"`
}

const FileName = "diesel.toml"

var (
	Backends    = []string{"soft", "vulkan", "d3d11"}
	LogLevels   = []string{"trace", "debug", "info", "warn", "error"}
	swapEffects = map[string]driver.SwapEffect{
		"discard":         driver.SwapEffectDiscard,
		"sequential":      driver.SwapEffectSequential,
		"flip_sequential": driver.SwapEffectFlipSequential,
		"flip_discard":    driver.SwapEffectFlipDiscard,
	}
	formats = map[string]driver.Format{
		"b8g8r8a8_unorm": driver.FormatB8G8R8A8Unorm,
		"r8g8b8a8_unorm": driver.FormatR8G8B8A8Unorm,
	}
)

// Default mirrors diesel.DefaultScene in an 800x600 window.
func Default() *Config {
	scene := diesel.DefaultScene()
	return &Config{
		Backend: "soft",
		Window:  WindowConfig{Width: 800, Height: 600, Title: "diesel"},
		SwapChain: SwapChainConfig{
			BufferCount:  scene.SwapChain.BufferCount,
			SwapEffect:   "flip_discard",
			SyncInterval: scene.SyncInterval,
			Format:       "b8g8r8a8_unorm",
		},
		Shader: ShaderConfig{
			VertexEntry:   scene.VertexEntry,
			PixelEntry:    scene.PixelEntry,
			VertexProfile: scene.VertexProfile,
			PixelProfile:  scene.PixelProfile,
		},
		ClearColor: scene.ClearColor[:],
		Log:        LogConfig{Level: "info"},
		Soft:       SoftConfig{RefreshHz: 60},
	}
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("backend", c.Backend)
	v.SetDefault("window.width", c.Window.Width)
	v.SetDefault("window.height", c.Window.Height)
	v.SetDefault("window.title", c.Window.Title)
	v.SetDefault("swapchain.buffer_count", c.SwapChain.BufferCount)
	v.SetDefault("swapchain.swap_effect", c.SwapChain.SwapEffect)
	v.SetDefault("swapchain.sync_interval", c.SwapChain.SyncInterval)
	v.SetDefault("swapchain.format", c.SwapChain.Format)
	v.SetDefault("shader.path", c.Shader.Path)
	v.SetDefault("shader.vertex_entry", c.Shader.VertexEntry)
	v.SetDefault("shader.pixel_entry", c.Shader.PixelEntry)
	v.SetDefault("shader.vertex_profile", c.Shader.VertexProfile)
	v.SetDefault("shader.pixel_profile", c.Shader.PixelProfile)
	v.SetDefault("clear_color", c.ClearColor)
	v.SetDefault("capture", c.Capture)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("vulkan.validation", c.Vulkan.Validation)
	v.SetDefault("soft.refresh_hz", c.Soft.RefreshHz)
}

// Flags maps command line flags to config keys.
var Flags = map[string]string{
	"backend":    "backend",
	"width":      "window.width",
	"height":     "window.height",
	"sync":       "swapchain.sync_interval",
	"shader":     "shader.path",
	"capture":    "capture",
	"log-level":  "log.level",
	"log-file":   "log.file",
	"validation": "vulkan.validation",
}

// Load reads cfgFile, or diesel.toml from the working directory and the user
// config directory when cfgFile is empty. A missing default file is not an
// error. Flags set on the command line win over DIESEL_* environment
// variables, which win over the file.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	cfg := Default()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("diesel")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "diesel"))
		}
	}
	v.SetEnvPrefix("DIESEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range Flags {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, errors.Wrap(err, "read config")
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !contains(Backends, c.Backend) {
		return errors.Errorf("backend must be one of %v, got %q", Backends, c.Backend)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Errorf("window size %dx%d is not positive", c.Window.Width, c.Window.Height)
	}
	if c.SwapChain.BufferCount < 1 || c.SwapChain.BufferCount > 16 {
		return errors.Errorf("swapchain.buffer_count must be within 1 and 16, got %d", c.SwapChain.BufferCount)
	}
	if c.SwapChain.SyncInterval > 4 {
		return errors.Errorf("swapchain.sync_interval must be within 0 and 4, got %d", c.SwapChain.SyncInterval)
	}
	if _, ok := swapEffects[c.SwapChain.SwapEffect]; !ok {
		return errors.Errorf("unknown swapchain.swap_effect %q", c.SwapChain.SwapEffect)
	}
	if _, ok := formats[c.SwapChain.Format]; !ok {
		return errors.Errorf("unknown swapchain.format %q", c.SwapChain.Format)
	}
	if len(c.ClearColor) != 4 {
		return errors.Errorf("clear_color needs 4 components, got %d", len(c.ClearColor))
	}
	if c.Capture != "" {
		switch strings.ToLower(filepath.Ext(c.Capture)) {
		case ".png", ".bmp":
		default:
			return errors.Errorf("capture %q must end in .png or .bmp", c.Capture)
		}
	}
	if !contains(LogLevels, c.Log.Level) {
		return errors.Errorf("log.level must be one of %v", LogLevels)
	}
	if c.Soft.RefreshHz <= 0 {
		return errors.Errorf("soft.refresh_hz must be positive")
	}
	return nil
}

// Scene turns the configuration into the renderer's scene. It reads the
// shader file when one is configured.
func (c *Config) Scene() (diesel.Scene, error) {
	scene := diesel.DefaultScene()
	if c.Shader.Path != "" {
		src, err := os.ReadFile(c.Shader.Path)
		if err != nil {
			return diesel.Scene{}, errors.Wrap(err, "read shader")
		}
		scene.VertexSource = string(src)
		scene.PixelSource = string(src)
	}
	scene.VertexEntry = c.Shader.VertexEntry
	scene.PixelEntry = c.Shader.PixelEntry
	scene.VertexProfile = c.Shader.VertexProfile
	scene.PixelProfile = c.Shader.PixelProfile
	copy(scene.ClearColor[:], c.ClearColor)
	scene.SwapChain.BufferCount = c.SwapChain.BufferCount
	scene.SwapChain.SwapEffect = swapEffects[c.SwapChain.SwapEffect]
	scene.SwapChain.Format = formats[c.SwapChain.Format]
	scene.SyncInterval = c.SwapChain.SyncInterval
	return scene, nil
}

// Write encodes c as TOML into path, creating its directory.
func Write(path string, c *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "config directory")
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0644), "write config")
}

// DefaultPath is diesel.toml in the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "user config directory")
	}
	return filepath.Join(dir, "diesel", FileName), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
