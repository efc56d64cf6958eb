// SPDX-License-Identifier: MIT
package analysis

// StereoFrame is one analysed stereo spectrum. Both slices hold one value per
// bin: MagnitudeDB is the mean channel level in dB (floored at FloorDB) and Pan
// is (R-L)/(L+R) in [-1, 1], 0 where both channels are silent.
type StereoFrame struct {
	MagnitudeDB []float32
	Pan         []float32
}

// NewStereoFrame allocates a frame sized for numBins bins.
func NewStereoFrame(numBins int) *StereoFrame {
	f := &StereoFrame{}
	f.Resize(numBins)
	return f
}

// Resize sets both slices to numBins, reusing storage when it is large enough.
func (f *StereoFrame) Resize(numBins int) {
	f.MagnitudeDB = resizeFilled(f.MagnitudeDB, numBins, FloorDB)
	f.Pan = resizeFilled(f.Pan, numBins, 0)
}

// StereoAnalyser runs the same framing as MonoAnalyser over two channels in
// lock-step and emits, per bin, the mean level of both channels plus a pan
// value. Threading rules are the same as MonoAnalyser's.
type StereoAnalyser struct {
	stft
	left, right     accumulator
	leftWS, rightWS fftWorkspace
	frames          frameRing
}

var _ FrameSource = (*StereoAnalyser)(nil)
var _ StereoSource = (*StereoAnalyser)(nil)
var _ FrameReader = (*StereoAnalyser)(nil)

// NewStereoAnalyser returns an unconfigured stereo analyser.
func NewStereoAnalyser() *StereoAnalyser {
	return &StereoAnalyser{stft: newSTFT()}
}

// NewStereoAnalyserWithConfig returns a stereo analyser already prepared for cfg.
func NewStereoAnalyserWithConfig(cfg Config) *StereoAnalyser {
	a := NewStereoAnalyser()
	a.Configure(cfg)
	return a
}

// Prepare (re)allocates both channels' state and the frame ring.
func (a *StereoAnalyser) Prepare(sampleRate float64, order FFTOrder) {
	a.stft.prepare(sampleRate, order)
	a.left.resize(a.fftSize)
	a.right.resize(a.fftSize)
	a.leftWS.resize(a.fftSize, a.numBins)
	a.rightWS.resize(a.fftSize, a.numBins)
	a.frames.resize(MaxFrames, a.numBins, true)
}

func (a *StereoAnalyser) Configure(cfg Config) {
	a.SetWindowType(cfg.Window)
	a.SetOverlap(cfg.Overlap)
	a.Prepare(cfg.SampleRate, cfg.Order)
}

func (a *StereoAnalyser) SetWindowType(fn WindowFunc) { a.stft.setWindowType(fn) }
func (a *StereoAnalyser) SetOverlap(fraction float64) { a.stft.setOverlap(fraction) }

// PushSamples feeds one block per channel. Only min(len(left), len(right))
// samples are consumed from each, so the channels never drift apart.
func (a *StereoAnalyser) PushSamples(left, right []float32) {
	if !a.prepared {
		return
	}
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	left, right = left[:n], right[:n]

	for len(left) > 0 {
		// Both accumulators sit at the same position, so they fill equally.
		c := a.left.fill(left)
		a.right.fill(right[:c])
		left, right = left[c:], right[c:]

		if a.left.full() {
			a.processFrame()
			a.left.shift(a.hopSize)
			a.right.shift(a.hopSize)
		}
	}
}

// PushInterleaved feeds a block of interleaved L/R samples without
// deinterleaving into a scratch buffer. A trailing odd sample is ignored.
func (a *StereoAnalyser) PushInterleaved(data []float32) {
	if !a.prepared {
		return
	}
	frames := len(data) / 2
	for i := 0; i < frames; {
		pos := a.left.pos
		n := len(a.left.buf) - pos
		if n > frames-i {
			n = frames - i
		}
		for j := 0; j < n; j++ {
			a.left.buf[pos+j] = float64(data[2*(i+j)])
			a.right.buf[pos+j] = float64(data[2*(i+j)+1])
		}
		a.left.pos += n
		a.right.pos += n
		i += n

		if a.left.full() {
			a.processFrame()
			a.left.shift(a.hopSize)
			a.right.shift(a.hopSize)
		}
	}
}

func (a *StereoAnalyser) processFrame() {
	magL := a.transform(&a.leftWS, a.left.buf)
	magR := a.transform(&a.rightWS, a.right.buf)

	slot := a.frames.next()
	for bin := range magL {
		l, r := magL[bin], magR[bin]
		slot.magnitudeDB[bin] = magnitudeToDB((l + r) / 2)
		slot.pan[bin] = panPosition(l, r)
	}
	a.frames.publish()
}

// panPosition maps two linear magnitudes to [-1, 1], -1 fully left.
func panPosition(l, r float64) float32 {
	sum := l + r
	if sum <= panEpsilon {
		return 0
	}
	return float32((r - l) / sum)
}

// PullNextFrame copies the oldest unread frame into dest, resizing dest's
// slices to GetNumBins first. It returns false if no frame is waiting.
func (a *StereoAnalyser) PullNextFrame(dest *StereoFrame) bool {
	if dest == nil {
		return false
	}
	if len(dest.MagnitudeDB) != a.frames.numBins || len(dest.Pan) != a.frames.numBins {
		dest.Resize(a.frames.numBins)
	}
	return a.frames.pull(dest.MagnitudeDB, dest.Pan)
}

// ReadFrame is PullNextFrame under the FrameReader name.
func (a *StereoAnalyser) ReadFrame(dest *StereoFrame) bool { return a.PullNextFrame(dest) }
func (a *StereoAnalyser) Source() FrameSource              { return a }

func (a *StereoAnalyser) GetFFTSize() int            { return a.fftSize }
func (a *StereoAnalyser) GetNumBins() int            { return a.numBins }
func (a *StereoAnalyser) GetSampleRate() float64     { return a.sampleRate }
func (a *StereoAnalyser) GetHopSize() int            { return a.hopSize }
func (a *StereoAnalyser) GetOverlap() float64        { return a.overlap }
func (a *StereoAnalyser) GetWindowType() WindowFunc  { return a.windowType }
func (a *StereoAnalyser) GetNumFramesAvailable() int { return a.frames.available() }
func (a *StereoAnalyser) GetDroppedFrames() uint64   { return a.frames.dropped.Load() }
func (a *StereoAnalyser) IsStereo() bool             { return true }
func (a *StereoAnalyser) GetFrequencyForBin(bin int) float64 {
	return BinFrequency(bin, a.sampleRate, a.fftSize)
}
