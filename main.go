// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"spectral/cmd"
	"spectral/internal/audio"
	"spectral/internal/log"
	"spectral/pkg/build"
)

// main is the entry point for the spectrum analyser.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Configure logging and runtime settings
//   - Initialize PortAudio
//
// 2. Concurrent Phase (Hot Path):
//   - PortAudio callback fills the sample ring
//   - Drain goroutine feeds the analyser
//   - Publisher goroutine fans frames out to UDP, WebSocket and the monitor
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop publishing, recording and capture
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Build information is optional so `go run` works.
	if err := build.InitializeOrDev(); err != nil && !errors.Is(err, build.ErrDevBuild) {
		log.Fatalf("%v", err)
	}

	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if options == nil {
		return // --help or --version
	}

	configureLogging(options)
	log.Debugf("%s", build.GetBuildFlags())

	// Limit OS threads:
	// - PortAudio's callback runs on its own native thread
	// - Two Go threads cover the drain, publisher and UI goroutines
	runtime.GOMAXPROCS(2)

	// Offline commands never touch the audio hardware.
	needsAudio := options.Command != cmd.CommandAnalyze && options.Command != cmd.CommandConfig
	if needsAudio {
		if err := audio.Initialize(); err != nil {
			log.Fatalf("%v", err)
		}
		defer audio.Terminate()
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, options); err != nil {
		log.Errorf("%v", err)
		stop()
		if needsAudio {
			audio.Terminate()
		}
		os.Exit(1)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	// Deferred calls release the signal handler and PortAudio.
}

func configureLogging(options *cmd.Options) {
	cfg := options.Config
	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}
	if cfg.Debug || options.Verbose {
		log.SetLevel(log.LevelDebug)
	}
}
