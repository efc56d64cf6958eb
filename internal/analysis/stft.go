// SPDX-License-Identifier: MIT
package analysis

import (
	"math/cmplx"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"
)

// fftWorkspace holds the pre-allocated buffers for one channel's transform.
type fftWorkspace struct {
	windowed  []float64    // Windowed real input.
	spectrum  []complex128 // numBins complex coefficients.
	magnitude []float64    // Normalised linear magnitudes.
}

func (ws *fftWorkspace) resize(fftSize, numBins int) {
	ws.windowed = make([]float64, fftSize)
	ws.spectrum = make([]complex128, numBins)
	ws.magnitude = make([]float64, numBins)
}

// accumulator collects incoming samples until a full frame is available.
// pos is always in [0, len(buf)).
type accumulator struct {
	buf []float64
	pos int
}

func (a *accumulator) resize(fftSize int) {
	a.buf = make([]float64, fftSize)
	a.pos = 0
}

// fill copies as many samples from src as fit before the frame is full and
// returns how many were consumed.
func (a *accumulator) fill(src []float32) int {
	dst := a.buf[a.pos:]
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	for i, v := range src[:n] {
		dst[i] = float64(v)
	}
	a.pos += n
	return n
}

func (a *accumulator) full() bool {
	return a.pos == len(a.buf)
}

// shift drops the oldest hop samples and moves the retained tail to the front.
func (a *accumulator) shift(hop int) {
	if hop > len(a.buf) {
		hop = len(a.buf)
	}
	retained := len(a.buf) - hop
	copy(a.buf, a.buf[hop:])
	a.pos = retained
}

// stft holds the configuration and transform plan shared by the mono and
// stereo analysers. Only the framing goroutine touches it after prepare.
type stft struct {
	sampleRate float64
	order      FFTOrder
	fftSize    int
	numBins    int
	hopSize    int
	overlap    float64
	windowType WindowFunc
	window     []float64
	fft        *fourier.FFT
	scale      float64 // 1/fftSize, gonum does not normalise.
	prepared   bool
}

func newSTFT() stft {
	return stft{
		sampleRate: DefaultSampleRate,
		order:      DefaultOrder,
		overlap:    DefaultOverlap,
		windowType: DefaultWindow,
	}
}

// prepare rebuilds the plan and window for a new sample rate and order.
// Window type and overlap carry over.
func (s *stft) prepare(sampleRate float64, order FFTOrder) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	s.sampleRate = sampleRate
	s.order = order.Clamp()
	s.fftSize = s.order.Size()
	s.numBins = s.fftSize/2 + 1
	s.hopSize = HopSize(s.fftSize, s.overlap)
	s.fft = fourier.NewFFT(s.fftSize)
	s.scale = 1.0 / float64(s.fftSize)
	s.window = NewWindowTable(s.fftSize, s.windowType)
	s.prepared = true
}

func (s *stft) setWindowType(fn WindowFunc) {
	s.windowType = fn
	if s.window != nil {
		BuildWindow(s.window, fn)
	}
}

func (s *stft) setOverlap(fraction float64) {
	s.overlap = ClampOverlap(fraction)
	if s.fftSize > 0 {
		s.hopSize = HopSize(s.fftSize, s.overlap)
	}
}

// transform windows input, runs the forward real FFT and leaves the
// normalised bin magnitudes |X[k]|/fftSize in ws.magnitude.
func (s *stft) transform(ws *fftWorkspace, input []float64) []float64 {
	for i, w := range s.window {
		ws.windowed[i] = input[i] * w
	}

	s.fft.Coefficients(ws.spectrum, ws.windowed)

	for i, c := range ws.spectrum {
		ws.magnitude[i] = cmplx.Abs(c)
	}
	f64.Scale(ws.magnitude, ws.magnitude, s.scale)
	return ws.magnitude
}
