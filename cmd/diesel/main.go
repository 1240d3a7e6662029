package main

import (
	"runtime"

	"github.com/andewx/diesel/cmd/diesel/commands"
	"github.com/xlab/closer"
)

func init() {
	// Window systems and the Vulkan surface want the main thread.
	runtime.LockOSThread()
}

func main() {
	defer closer.Close()
	if err := commands.Execute(); err != nil {
		closer.Exit(closer.ExitCodeErr)
	}
}
