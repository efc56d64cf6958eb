// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"strings"
	"time"

	"spectral/internal/analysis"
	"spectral/internal/log"
)

// Core configuration constants that define the boundaries and defaults
// for the capture engine and the analysers it feeds.
const (
	DefaultChannels        = 2     // Stereo capture, analysed as mono unless Stereo is set
	DefaultDeviceID        = MinDeviceID
	DefaultFormat          = "wav" // WAV file format for recordings
	DefaultFramesPerBuffer = 512   // Balanced latency/performance
	DefaultSampleRate      = 44100 // CD-quality audio
	DefaultFFTOrder        = int(analysis.DefaultOrder)
	DefaultWindow          = "hann"
	DefaultOverlap         = analysis.DefaultOverlap
	DefaultDrainInterval   = 16 * time.Millisecond // ~60 Hz
	DefaultRingSeconds     = 2.0
	DefaultUDPInterval     = 33 * time.Millisecond // ~30 Hz
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultWebSocketAddr   = "localhost:8080"

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MaxRingSeconds  = 30.0
)

// Config represents the main application configuration, loaded from YAML or
// TOML and then overridden by environment variables and CLI flags.
type Config struct {
	Debug     bool            `yaml:"debug" toml:"debug"`         // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level" toml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio" toml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis" toml:"analysis"`
	Recording RecordingConfig `yaml:"recording" toml:"recording"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`

	// Path of the file this config was loaded from, empty for defaults.
	Path string `yaml:"-" toml:"-"`
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device" toml:"input_device"`           // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate" toml:"sample_rate"`             // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer" toml:"frames_per_buffer"` // Frames per real-time callback.
	LowLatency      bool    `yaml:"low_latency" toml:"low_latency"`             // Request low latency settings from PortAudio.
	InputChannels   int     `yaml:"input_channels" toml:"input_channels"`       // 1 for mono, 2 for stereo.
	GateThreshold   float64 `yaml:"gate_threshold" toml:"gate_threshold"`       // Noise gate peak threshold 0..1, 0 disables.
}

// AnalysisConfig holds the STFT settings. Everything here can be changed
// while running through the config watcher.
type AnalysisConfig struct {
	FFTOrder      int           `yaml:"fft_order" toml:"fft_order"`           // FFT size as 2^order, 10..13.
	Window        string        `yaml:"window" toml:"window"`                 // "hann" or "blackman-harris" (and the other gonum windows).
	Overlap       float64       `yaml:"overlap" toml:"overlap"`               // Fraction of each frame shared with the next, 0..0.875.
	Stereo        bool          `yaml:"stereo" toml:"stereo"`                 // Emit magnitude + pan frames instead of mono.
	DrainInterval time.Duration `yaml:"drain_interval" toml:"drain_interval"` // Period of the ring drain loop.
	RingSeconds   float64       `yaml:"ring_seconds" toml:"ring_seconds"`     // Sample ring capacity in seconds of audio.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`       // Enable audio recording to file.
	OutputDir string `yaml:"output_dir" toml:"output_dir"` // Directory to save recorded audio files.
	Format    string `yaml:"format" toml:"format"`         // File format for recordings, only "wav".
	BitDepth  int    `yaml:"bit_depth" toml:"bit_depth"`   // 16, 24 or 32.
}

// TransportConfig holds settings related to publishing frames.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled" toml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address" toml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval" toml:"udp_send_interval"`   // Interval between frame drains.

	WebSocketEnabled bool   `yaml:"websocket_enabled" toml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address" toml:"websocket_address"` // Listen address, e.g. "localhost:8080".
}

// Default returns the built-in configuration used when no file is found.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
		},
		Analysis: AnalysisConfig{
			FFTOrder:      DefaultFFTOrder,
			Window:        DefaultWindow,
			Overlap:       DefaultOverlap,
			DrainInterval: DefaultDrainInterval,
			RingSeconds:   DefaultRingSeconds,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			Format:    DefaultFormat,
			BitDepth:  16,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPInterval,
			WebSocketAddress: DefaultWebSocketAddr,
		},
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, ok := log.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("log_level '%s' is not one of debug, info, warn, error", c.LogLevel)
		}
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if c.Analysis.Stereo && c.Audio.InputChannels != 2 {
		return fmt.Errorf("analysis.stereo requires audio.input_channels = 2, got %d", c.Audio.InputChannels)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.InputDevice < MinDeviceID {
		return fmt.Errorf("input_device must be >= %d, got %d", MinDeviceID, a.InputDevice)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample_rate %.0f outside %d..%d", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer < 1 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("frames_per_buffer %d outside 1..%d", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels != 1 && a.InputChannels != 2 {
		return fmt.Errorf("input_channels must be 1 or 2, got %d", a.InputChannels)
	}
	if !(a.GateThreshold >= 0 && a.GateThreshold <= 1) {
		return fmt.Errorf("gate_threshold %.3f outside 0..1", a.GateThreshold)
	}
	return nil
}

func (a *AnalysisConfig) Validate() error {
	if !analysis.FFTOrder(a.FFTOrder).Valid() {
		return fmt.Errorf("fft_order %d outside %d..%d", a.FFTOrder, analysis.MinFFTOrder, analysis.MaxFFTOrder)
	}
	if _, err := analysis.ParseWindowFunc(a.Window); err != nil {
		return err
	}
	if !(a.Overlap >= 0 && a.Overlap <= analysis.MaxOverlap) {
		return fmt.Errorf("overlap %.3f outside 0..%.3f", a.Overlap, analysis.MaxOverlap)
	}
	if a.DrainInterval <= 0 {
		return fmt.Errorf("drain_interval must be positive")
	}
	if a.RingSeconds <= 0 || a.RingSeconds > MaxRingSeconds {
		return fmt.Errorf("ring_seconds %.2f outside (0, %.0f]", a.RingSeconds, MaxRingSeconds)
	}
	return nil
}

func (r *RecordingConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if !strings.EqualFold(r.Format, "wav") {
		return fmt.Errorf("unsupported format '%s', only wav", r.Format)
	}
	switch r.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("bit_depth must be 16, 24 or 32, got %d", r.BitDepth)
	}
	return nil
}

func (t *TransportConfig) Validate() error {
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			return fmt.Errorf("udp_target_address must be set when UDP is enabled")
		}
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("udp_send_interval must be positive when UDP is enabled")
		}
	}
	if t.WebSocketEnabled && t.WebSocketAddress == "" {
		return fmt.Errorf("websocket_address must be set when WebSocket is enabled")
	}
	return nil
}

// AnalyserConfig converts the validated file settings into the analyser's
// own configuration type.
func (c *Config) AnalyserConfig() analysis.Config {
	window, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		log.Warnf("config: %v, using %s", err, window)
	}
	return analysis.Config{
		SampleRate: c.Audio.SampleRate,
		Order:      analysis.FFTOrder(c.Analysis.FFTOrder).Clamp(),
		Window:     window,
		Overlap:    analysis.ClampOverlap(c.Analysis.Overlap),
	}
}

// RingCapacity is the sample ring size in samples (all channels interleaved).
func (c *Config) RingCapacity() int {
	n := int(c.Analysis.RingSeconds * c.Audio.SampleRate)
	if n < c.Audio.FramesPerBuffer {
		n = c.Audio.FramesPerBuffer
	}
	return n * c.Audio.InputChannels
}
