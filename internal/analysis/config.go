// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"spectral/pkg/bitint"
)

// FFTOrder selects the FFT size as a power of two (fftSize = 1 << order).
type FFTOrder int

const (
	Order1024 FFTOrder = 10
	Order2048 FFTOrder = 11
	Order4096 FFTOrder = 12
	Order8192 FFTOrder = 13

	MinFFTOrder = Order1024
	MaxFFTOrder = Order8192
)

const (
	// FloorDB is the lowest magnitude ever emitted in a frame.
	FloorDB = -100.0

	// MaxOverlap is the upper bound accepted by SetOverlap.
	MaxOverlap = 0.875

	// MaxFrames is the number of slots in each analyser's frame ring.
	MaxFrames = 512

	// panEpsilon is the combined magnitude below which a bin is reported as centred.
	panEpsilon = 1e-10

	DefaultSampleRate = 44100.0
	DefaultOrder      = Order4096
	DefaultWindow     = Hann
	DefaultOverlap    = 0.5
)

// Size returns the number of points in an FFT of this order.
func (o FFTOrder) Size() int {
	return 1 << int(o.Clamp())
}

// Clamp pins the order into the supported range.
func (o FFTOrder) Clamp() FFTOrder {
	if o < MinFFTOrder {
		return MinFFTOrder
	}
	if o > MaxFFTOrder {
		return MaxFFTOrder
	}
	return o
}

// Valid reports whether the order is one of the supported sizes.
func (o FFTOrder) Valid() bool {
	return o >= MinFFTOrder && o <= MaxFFTOrder
}

func (o FFTOrder) String() string {
	return fmt.Sprintf("%d", 1<<int(o))
}

// FFTOrderForSize converts an FFT size (1024, 2048, 4096, 8192) to its order.
func FFTOrderForSize(size int) (FFTOrder, error) {
	if !bitint.IsPowerOfTwo(size) {
		return DefaultOrder, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	order := FFTOrder(bitint.Log2(size))
	if !order.Valid() {
		return DefaultOrder, fmt.Errorf("fft size %d outside supported range %d..%d",
			size, MinFFTOrder.Size(), MaxFFTOrder.Size())
	}
	return order, nil
}

// Config describes one analyser configuration. The zero value is not useful,
// start from DefaultConfig.
type Config struct {
	SampleRate float64    // Sample rate of the incoming stream (Hz).
	Order      FFTOrder   // FFT size as a power-of-two order.
	Window     WindowFunc // Window applied before each transform.
	Overlap    float64    // Fraction of each frame shared with the next, [0, 0.875].
}

// DefaultConfig returns the configuration the analysers start with.
func DefaultConfig() Config {
	return Config{
		SampleRate: DefaultSampleRate,
		Order:      DefaultOrder,
		Window:     DefaultWindow,
		Overlap:    DefaultOverlap,
	}
}

func (c Config) FFTSize() int { return c.Order.Size() }
func (c Config) NumBins() int { return c.FFTSize()/2 + 1 }
func (c Config) HopSize() int { return HopSize(c.FFTSize(), c.Overlap) }

// ClampOverlap pins an overlap fraction into [0, MaxOverlap]. NaN maps to 0.
func ClampOverlap(fraction float64) float64 {
	if !(fraction > 0) {
		return 0
	}
	if fraction > MaxOverlap {
		return MaxOverlap
	}
	return fraction
}

// HopSize returns the number of new samples between successive frames,
// floor(fftSize*(1-overlap)) with a floor of one.
func HopSize(fftSize int, overlap float64) int {
	hop := int(math.Floor(float64(fftSize) * (1 - ClampOverlap(overlap))))
	if hop < 1 {
		hop = 1
	}
	return hop
}

// BinFrequency returns the centre frequency (Hz) of an FFT bin.
func BinFrequency(bin int, sampleRate float64, fftSize int) float64 {
	if fftSize <= 0 {
		return 0
	}
	return float64(bin) * sampleRate / float64(fftSize)
}

// FrequencyBin returns the bin nearest to freq, clamped to [0, fftSize/2].
func FrequencyBin(freq, sampleRate float64, fftSize int) int {
	if sampleRate <= 0 {
		return 0
	}
	bin := int(math.Round(freq * float64(fftSize) / sampleRate))
	if bin < 0 {
		return 0
	}
	if bin > fftSize/2 {
		return fftSize / 2
	}
	return bin
}

// magnitudeToDB converts a normalised linear magnitude to decibels, never
// returning less than FloorDB.
func magnitudeToDB(mag float64) float32 {
	if !(mag > 0) {
		return FloorDB
	}
	db := 20 * math.Log10(mag)
	if db < FloorDB {
		return FloorDB
	}
	return float32(db)
}
