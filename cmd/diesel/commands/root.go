package commands

import (
	"github.com/andewx/diesel/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "diesel",
	Short: "Draw a triangle through a D3D11 style device, swapchain and pipeline",
	Long: `diesel creates a device and a swapchain for a window, compiles a vertex and
a pixel shader, binds the pipeline, draws one frame and presents it. The
window then stays open until it is closed.

Backends: soft renders on the CPU without a window, vulkan draws into a GLFW
window and d3d11 into a Win32 window.`,
	SilenceUsage: true,
	RunE:         run,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	def := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./diesel.toml or the user config directory)")
	flags.StringP("backend", "b", def.Backend, "platform: soft, vulkan or d3d11")
	flags.Int("width", def.Window.Width, "window width")
	flags.Int("height", def.Window.Height, "window height")
	flags.Uint32("sync", def.SwapChain.SyncInterval, "present sync interval, 0 to 4")
	flags.String("shader", "", "WGSL file with both entry points")
	flags.StringP("capture", "o", "", "write the first frame to a .png or .bmp file")
	flags.String("log-level", def.Log.Level, "log level")
	flags.String("log-file", "", "also append the log to this file")
	flags.Bool("validation", false, "enable the Vulkan validation layer")

	rootCmd.AddCommand(configCmd, backendsCmd)
}

func load(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cfgFile, cmd.Flags())
}
