// SPDX-License-Identifier: MIT
/*
Package audio runs the capture side of the analyser:
- Lock-free audio capture using PortAudio into a SampleRing
- A drain goroutine that feeds the ring into the STFT analyser
- Double-buffered analyser reconfiguration
- WAV recording of the captured stream

Thread Safety:
  - The PortAudio callback only touches the SampleRing write side, a
    preallocated downmix buffer and atomic counters. It never blocks,
    allocates or logs.
  - The drain goroutine owns the ring's read side, the analyser's push side
    and the WAV encoder.
  - Consumers (publishers, the monitor) only call ReadFrame / PullMono /
    PullStereo, which touch the analyser's frame ring read side.
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"spectral/internal/analysis"
	"spectral/internal/config"
	"spectral/internal/log"
)

// inputStream is the part of *portaudio.Stream the engine uses.
type inputStream interface {
	Start() error
	Stop() error
	Close() error
}

// openStream is swapped out in tests so the engine can run without hardware.
var openStream = func(params portaudio.StreamParameters, callback func(in []float32)) (inputStream, error) {
	return portaudio.OpenStream(params, callback)
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	OverflowSamples uint64 // Samples the callback dropped because the ring was full.
	SamplesAnalysed uint64 // Samples handed to the analyser.
	Callbacks       uint64 // Real-time callbacks served.
	DroppedFrames   uint64 // Frames overwritten before a consumer read them, across reconfigurations.
	Reconfigures    uint64 // Analyser swaps applied.
	FramesWaiting   int
}

type Engine struct {
	// Core configuration and state.
	config       *config.Config
	channels     int  // Channels delivered by the device.
	ringChannels int  // Channels stored in the ring, 2 in stereo mode else 1.
	stereo       bool // Stereo analyser instead of mono.

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  inputStream

	// Real-time side.
	ring      *analysis.SampleRing
	downmix   []float32 // Mono scratch for multi-channel input.
	silence   []float32 // Substituted for blocks the gate closes on.
	gate      inputGate
	overflow  atomic.Uint64
	callbacks atomic.Uint64

	// Drain side.
	drainBuf     []float32
	analysed     atomic.Uint64
	mono         atomic.Pointer[analysis.MonoAnalyser]
	stereoA      atomic.Pointer[analysis.StereoAnalyser]
	pending      atomic.Pointer[analysis.Config]
	reconfigures atomic.Uint64
	retired      atomic.Uint64 // Frames dropped by analysers swapped out.

	// Recording state, written only from the drain goroutine once started.
	isRecording atomic.Bool
	recMu       sync.Mutex
	recorder    *recorder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine resolves the configured input device and builds an engine for it.
func NewEngine(cfg *config.Config) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	engine := newEngine(cfg)
	engine.inputDevice = inputDevice
	if cfg.Audio.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}
	return engine, nil
}

// newEngine allocates every buffer the callback and drain loop will use.
func newEngine(cfg *config.Config) *Engine {
	e := &Engine{
		config:       cfg,
		channels:     cfg.Audio.InputChannels,
		ringChannels: 1,
		stereo:       cfg.Analysis.Stereo && cfg.Audio.InputChannels == 2,
	}
	if e.channels < 1 {
		e.channels = 1
	}
	if e.stereo {
		e.ringChannels = 2
	}

	frames := int(cfg.Analysis.RingSeconds * cfg.Audio.SampleRate)
	if frames < cfg.Audio.FramesPerBuffer {
		frames = cfg.Audio.FramesPerBuffer
	}
	e.ring = analysis.NewSampleRing(frames * e.ringChannels)
	e.downmix = make([]float32, cfg.Audio.FramesPerBuffer)
	e.silence = make([]float32, cfg.Audio.FramesPerBuffer*e.channels)
	if cfg.Audio.GateThreshold > 0 {
		e.SetGateThreshold(cfg.Audio.GateThreshold)
		e.EnableGate()
	}
	// Sized for the largest FFT so reconfiguration never reallocates it.
	e.drainBuf = make([]float32, analysis.MaxFFTOrder.Size()*e.ringChannels)

	e.install(cfg.AnalyserConfig())
	return e
}

// install builds a fresh analyser for ac and publishes it.
func (e *Engine) install(ac analysis.Config) {
	ac.SampleRate = e.config.Audio.SampleRate
	if e.stereo {
		e.stereoA.Store(analysis.NewStereoAnalyserWithConfig(ac))
	} else {
		e.mono.Store(analysis.NewMonoAnalyserWithConfig(ac))
	}
}

// Start opens and starts the input stream and the drain goroutine.
func (e *Engine) Start(ctx context.Context) error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := openStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.drainLoop(ctx)

	if err := e.inputStream.Start(); err != nil {
		e.cancel()
		e.wg.Wait()
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	log.WithFields(log.Fields{
		"channels":    e.channels,
		"stereo":      e.stereo,
		"sample_rate": e.config.Audio.SampleRate,
		"ring":        e.ring.GetCapacity(),
	}).Info("audio engine started")
	return nil
}

// Stop stops the input stream and waits for the drain goroutine to exit.
// The drain goroutine is stopped even when the stream fails to stop or close.
func (e *Engine) Stop() error {
	var errs []error
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop input stream: %w", err))
		}
		if err := e.inputStream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close input stream: %w", err))
		}
		e.inputStream = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	return errors.Join(errs...)
}

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Uses pre-allocated buffers only
// - No locks, no logging, no dynamic allocations
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.callbacks.Add(1)

	if !e.gate.apply(in) && len(in) <= len(e.silence) {
		in = e.silence[:len(in)]
	}

	if e.stereo || e.channels == 1 {
		e.pushFrames(in)
		return
	}

	// Mono analysis of multi-channel input: average the first two channels.
	frames := len(in) / e.channels
	if frames > len(e.downmix) {
		frames = len(e.downmix)
	}
	for i := 0; i < frames; i++ {
		base := i * e.channels
		e.downmix[i] = (in[base] + in[base+1]) * 0.5
	}
	e.pushFrames(e.downmix[:frames])
}

// pushFrames pushes only whole frames so the ring never splits a stereo pair.
func (e *Engine) pushFrames(data []float32) {
	n := len(data)
	if free := e.ring.GetFreeSpace(); n > free {
		n = free - free%e.ringChannels
	}
	if n > 0 {
		e.ring.Push(data[:n])
	}
	if dropped := len(data) - n; dropped > 0 {
		e.overflow.Add(uint64(dropped))
	}
}

// drainLoop is the non-real-time context: it applies pending
// reconfigurations and moves everything buffered into the analyser.
func (e *Engine) drainLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.config.Analysis.DrainInterval
	if interval <= 0 {
		interval = config.DefaultDrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return
		case <-ticker.C:
			e.drain()
		}
	}
}

// drain applies a pending reconfiguration, then pops the ring until it is
// empty. Returns the number of samples moved.
func (e *Engine) drain() int {
	if ac := e.pending.Swap(nil); ac != nil {
		e.retired.Add(e.Analyser().GetDroppedFrames())
		e.install(*ac)
		e.reconfigures.Add(1)
		log.WithComponent("audio").Infof("analyser reconfigured: fft=%d window=%s overlap=%.3f",
			ac.FFTSize(), ac.Window, ac.Overlap)
	}

	mono, stereo := e.mono.Load(), e.stereoA.Load()
	total := 0
	for {
		n := e.ring.Pop(e.drainBuf)
		if n == 0 {
			break
		}
		block := e.drainBuf[:n]
		if e.stereo {
			stereo.PushInterleaved(block)
		} else {
			mono.PushSamples(block)
		}
		if e.isRecording.Load() {
			e.writeRecording(block)
		}
		total += n
	}
	e.analysed.Add(uint64(total / e.ringChannels))
	return total
}

// Reconfigure queues new analyser settings. The drain goroutine builds a
// new analyser and swaps it in on its next tick; consumers see the new
// geometry once they reload Analyser(). Frames still queued in the old
// analyser are discarded. The sample rate always follows the device.
func (e *Engine) Reconfigure(ac analysis.Config) {
	ac.SampleRate = e.config.Audio.SampleRate
	e.pending.Store(&ac)
}

// Analyser returns the current analyser's read-only view.
func (e *Engine) Analyser() analysis.FrameSource {
	if e.stereo {
		return e.stereoA.Load()
	}
	return e.mono.Load()
}

// IsStereo reports whether the engine produces stereo frames.
func (e *Engine) IsStereo() bool { return e.stereo }

// PullMono pulls the next mono frame. Returns false in stereo mode.
func (e *Engine) PullMono(dest []float32) bool {
	if e.stereo {
		return false
	}
	return e.mono.Load().PullNextFrame(dest)
}

// PullStereo pulls the next stereo frame. Returns false in mono mode.
func (e *Engine) PullStereo(dest *analysis.StereoFrame) bool {
	if !e.stereo {
		return false
	}
	return e.stereoA.Load().PullNextFrame(dest)
}

// ReadFrame pulls the next frame in either mode, see analysis.FrameReader.
func (e *Engine) ReadFrame(dest *analysis.StereoFrame) bool {
	if e.stereo {
		return e.stereoA.Load().ReadFrame(dest)
	}
	return e.mono.Load().ReadFrame(dest)
}

// Source implements analysis.FrameReader.
func (e *Engine) Source() analysis.FrameSource { return e.Analyser() }

var _ analysis.FrameReader = (*Engine)(nil)

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	src := e.Analyser()
	return Stats{
		OverflowSamples: e.overflow.Load(),
		SamplesAnalysed: e.analysed.Load(),
		Callbacks:       e.callbacks.Load(),
		DroppedFrames:   e.retired.Load() + src.GetDroppedFrames(),
		Reconfigures:    e.reconfigures.Load(),
		FramesWaiting:   src.GetNumFramesAvailable(),
	}
}

// DeviceName returns the input device name, or "" before NewEngine resolved one.
func (e *Engine) DeviceName() string {
	if e.inputDevice == nil {
		return ""
	}
	return e.inputDevice.Name
}

// SampleRate returns the capture sample rate.
func (e *Engine) SampleRate() float64 { return e.config.Audio.SampleRate }

// Close stops the stream and finalises any recording. Both always run;
// their errors are joined.
func (e *Engine) Close() error {
	stopErr := e.Stop()
	return errors.Join(stopErr, e.StopRecording())
}
