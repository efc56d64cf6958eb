// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"spectral/internal/analysis"
	"spectral/internal/audio"
	"spectral/internal/config"
	"spectral/internal/log"
	"spectral/internal/transport"
	"spectral/internal/transport/udp"
	"spectral/internal/tui"
	"spectral/pkg/build"
)

// logEveryFrames is how often the debug logging transport prints a frame.
const logEveryFrames = 30

// Execute runs the command selected in options until ctx is cancelled.
func Execute(ctx context.Context, options *Options) error {
	switch options.Command {
	case CommandList:
		return audio.ListDevices(os.Stdout)

	case CommandAnalyze:
		cfg := options.Config
		n, err := Analyze(os.Stdout, options.AnalyzeFile, cfg.AnalyserConfig(), cfg.Analysis.Stereo)
		if err != nil {
			return err
		}
		log.Infof("%d frames analysed", n)
		return nil

	case CommandConfig:
		format := config.FormatYAML
		if options.TOML {
			format = config.FormatTOML
		}
		data, err := config.Encode(options.Config, format)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err

	case CommandPick:
		selection, err := tui.PickDevice(audio.HostDevices)
		if err != nil {
			return err
		}
		if selection == nil {
			return nil
		}
		applySelection(options.Config, selection)
		if err := options.Config.Validate(); err != nil {
			return err
		}
		return Run(ctx, options)

	default:
		return Run(ctx, options)
	}
}

// applySelection points cfg at the picked device, dropping to mono when the
// device has a single input channel.
func applySelection(cfg *config.Config, s *tui.Selection) {
	cfg.Audio.InputDevice = s.Device.ID
	cfg.Audio.SampleRate = s.SampleRate
	if s.Device.MaxInputChannels < cfg.Audio.InputChannels {
		cfg.Audio.InputChannels = max(1, s.Device.MaxInputChannels)
	}
	if cfg.Audio.InputChannels < 2 {
		cfg.Analysis.Stereo = false
	}
}

// Run captures from the configured device and publishes frames until ctx
// is cancelled or the monitor exits.
func Run(ctx context.Context, options *Options) error {
	cfg := options.Config

	engine, err := audio.NewEngine(cfg)
	if err != nil {
		return err
	}

	publisher, err := buildPublisher(cfg, engine)
	if err != nil {
		return err
	}

	var monitor *tui.Monitor
	if options.TUI {
		monitor = tui.NewMonitor(engineStatus(engine))
		publisher.AddTransport(monitor)
		// The monitor owns the terminal.
		log.SetOutput(io.Discard)
		defer log.SetOutput(os.Stderr)
	}

	// CRITICAL: PortAudio starts calling the real-time callback here.
	if err := engine.Start(ctx); err != nil {
		publisher.Close()
		return err
	}
	publisher.Start()

	if cfg.Recording.Enabled {
		filename := options.OutputFile
		if filename != "" {
			err = engine.StartRecording(filename)
		} else {
			filename, err = engine.StartRecordingIn(cfg.Recording.OutputDir)
		}
		if err != nil {
			log.Errorf("Recording disabled: %v", err)
		} else {
			defer fmt.Printf("\nRecording saved to: %s\n", filename)
		}
	}

	if options.Watch {
		watcher, err := config.NewWatcher(cfg.Path, func(next *config.Config) {
			if err := options.ApplyFlags(next); err != nil {
				log.Warnf("Ignoring config change: %v", err)
				return
			}
			engine.Reconfigure(next.AnalyserConfig())
			if level, ok := log.ParseLevel(next.LogLevel); ok {
				log.SetLevel(level)
			}
		})
		if err != nil {
			log.Errorf("Config watch disabled: %v", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	if monitor != nil {
		err = monitor.Run(ctx)
	} else {
		log.Infof("%s running, press Ctrl+C to stop", build.GetBuildFlags().Name)
		<-ctx.Done()
	}

	// ==================== SHUTDOWN ====================
	if cerr := publisher.Close(); cerr != nil {
		log.Errorf("Error closing publisher: %v", cerr)
	}
	if cerr := engine.Close(); cerr != nil {
		log.Errorf("Error closing audio engine: %v", cerr)
	}

	stats := engine.Stats()
	log.WithFields(log.Fields{
		"analysed_samples": stats.SamplesAnalysed,
		"overflow_samples": stats.OverflowSamples,
		"dropped_frames":   stats.DroppedFrames,
		"published":        publisher.Published(),
	}).Info("stopped")
	return err
}

// buildPublisher wires every enabled output onto one publisher reading from
// reader.
func buildPublisher(cfg *config.Config, reader analysis.FrameReader) (*transport.Publisher, error) {
	publisher, err := transport.NewPublisher(cfg.Transport.UDPSendInterval, reader)
	if err != nil {
		return nil, err
	}
	publisher.SetBands(analysis.DefaultBands)

	if cfg.Transport.UDPEnabled {
		t, err := udp.Dial(cfg.Transport.UDPTargetAddress, build.GetBuildFlags().InstanceID)
		if err != nil {
			return nil, err
		}
		publisher.AddTransport(t)
	}
	if cfg.Transport.WebSocketEnabled {
		publisher.AddTransport(transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress))
	}
	if log.IsDebug() {
		publisher.AddTransport(transport.NewLoggingTransport(logEveryFrames))
	}
	return publisher, nil
}

// analyserSettings is implemented by both analysers.
type analyserSettings interface {
	GetWindowType() analysis.WindowFunc
	GetOverlap() float64
}

func engineStatus(engine *audio.Engine) func() tui.Status {
	return func() tui.Status {
		stats := engine.Stats()
		s := tui.Status{
			Device:          engine.DeviceName(),
			OverflowSamples: stats.OverflowSamples,
			DroppedFrames:   stats.DroppedFrames,
			InputPeak:       engine.GetInputPeak(),
			Recording:       engine.IsRecording(),
		}
		if a, ok := engine.Analyser().(analyserSettings); ok {
			s.Window = a.GetWindowType().String()
			s.Overlap = a.GetOverlap()
		}
		return s
	}
}
