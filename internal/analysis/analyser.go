// SPDX-License-Identifier: MIT
package analysis

// MonoAnalyser turns a continuous sample stream into a sequence of windowed,
// overlapped magnitude spectra in dB.
//
// It starts Unconfigured: PushSamples is a no-op and PullNextFrame reports
// no frames until Prepare (or Configure) has been called. PushSamples must
// only be called from one goroutine and PullNextFrame from one other; the
// two communicate through a lock-free frame ring. Prepare, Configure,
// SetWindowType and SetOverlap must not run concurrently with either.
type MonoAnalyser struct {
	stft
	input     accumulator
	workspace fftWorkspace
	frames    frameRing
}

// Compile-time checks for interface implementations.
var _ FrameSource = (*MonoAnalyser)(nil)
var _ MonoSource = (*MonoAnalyser)(nil)
var _ FrameReader = (*MonoAnalyser)(nil)

// NewMonoAnalyser returns an unconfigured analyser with the default window
// (Hann) and overlap (50%).
func NewMonoAnalyser() *MonoAnalyser {
	return &MonoAnalyser{stft: newSTFT()}
}

// NewMonoAnalyserWithConfig returns an analyser already prepared for cfg.
func NewMonoAnalyserWithConfig(cfg Config) *MonoAnalyser {
	a := NewMonoAnalyser()
	a.Configure(cfg)
	return a
}

// Prepare (re)allocates the accumulator, window table, FFT plan and frame
// ring for the given sample rate and order, and resets all cursors.
func (a *MonoAnalyser) Prepare(sampleRate float64, order FFTOrder) {
	a.stft.prepare(sampleRate, order)
	a.input.resize(a.fftSize)
	a.workspace.resize(a.fftSize, a.numBins)
	a.frames.resize(MaxFrames, a.numBins, false)
}

// Configure applies window, overlap, sample rate and order in one step.
func (a *MonoAnalyser) Configure(cfg Config) {
	a.SetWindowType(cfg.Window)
	a.SetOverlap(cfg.Overlap)
	a.Prepare(cfg.SampleRate, cfg.Order)
}

// SetWindowType rebuilds the window table in place.
func (a *MonoAnalyser) SetWindowType(fn WindowFunc) {
	a.stft.setWindowType(fn)
}

// SetOverlap clamps fraction into [0, 0.875] and recomputes the hop size.
func (a *MonoAnalyser) SetOverlap(fraction float64) {
	a.stft.setOverlap(fraction)
}

// PushSamples appends samples to the accumulator. Every time it fills, one
// frame is transformed and published and the trailing fftSize-hopSize
// samples are kept for the next frame. It does not allocate.
func (a *MonoAnalyser) PushSamples(data []float32) {
	if !a.prepared {
		return
	}
	for len(data) > 0 {
		n := a.input.fill(data)
		data = data[n:]
		if a.input.full() {
			a.processFrame()
			a.input.shift(a.hopSize)
		}
	}
}

func (a *MonoAnalyser) processFrame() {
	mags := a.transform(&a.workspace, a.input.buf)

	slot := a.frames.next()
	for bin, m := range mags {
		slot.magnitudeDB[bin] = magnitudeToDB(m)
	}
	a.frames.publish()
}

// PullNextFrame copies the oldest unread frame into dest (up to len(dest)
// bins) and returns true, or returns false if no frame is waiting.
func (a *MonoAnalyser) PullNextFrame(dest []float32) bool {
	if len(dest) > a.frames.numBins {
		dest = dest[:a.frames.numBins]
	}
	return a.frames.pull(dest, nil)
}

// ReadFrame pulls the next frame into dest.MagnitudeDB and empties dest.Pan.
func (a *MonoAnalyser) ReadFrame(dest *StereoFrame) bool {
	if dest == nil {
		return false
	}
	if len(dest.MagnitudeDB) != a.frames.numBins {
		dest.MagnitudeDB = resizeFilled(dest.MagnitudeDB, a.frames.numBins, FloorDB)
	}
	dest.Pan = dest.Pan[:0]
	return a.frames.pull(dest.MagnitudeDB, nil)
}

// Source returns the analyser itself.
func (a *MonoAnalyser) Source() FrameSource { return a }

// GetFFTSize returns the configured FFT size (number of points).
func (a *MonoAnalyser) GetFFTSize() int { return a.fftSize }

// GetNumBins returns fftSize/2 + 1.
func (a *MonoAnalyser) GetNumBins() int { return a.numBins }

// GetSampleRate returns the configured sample rate (Hz).
func (a *MonoAnalyser) GetSampleRate() float64 { return a.sampleRate }

func (a *MonoAnalyser) GetHopSize() int            { return a.hopSize }
func (a *MonoAnalyser) GetOverlap() float64        { return a.overlap }
func (a *MonoAnalyser) GetWindowType() WindowFunc  { return a.windowType }
func (a *MonoAnalyser) GetNumFramesAvailable() int { return a.frames.available() }
func (a *MonoAnalyser) GetDroppedFrames() uint64   { return a.frames.dropped.Load() }
func (a *MonoAnalyser) GetFrequencyForBin(bin int) float64 {
	return BinFrequency(bin, a.sampleRate, a.fftSize)
}

// IsStereo reports false.
func (a *MonoAnalyser) IsStereo() bool { return false }
