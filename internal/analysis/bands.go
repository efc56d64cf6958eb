// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"github.com/tphakala/simd/f64"
)

// FrequencyBand defines the name and frequency range of one energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the way the monitor and the band
// publisher display it. The top band is open-ended up to Nyquist.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandLevels reduces dB frames to per-band levels. Bin ranges are computed
// once from the source's geometry, so Compute does not allocate.
type BandLevels struct {
	bands  []FrequencyBand
	ranges [][2]int // [first, last) bin per band
	power  []float64
	levels []float64
}

// NewBandLevels maps bands onto the bins of src. Bands that contain no bin
// report FloorDB.
func NewBandLevels(src FrameSource, bands []FrequencyBand) *BandLevels {
	if len(bands) == 0 {
		bands = DefaultBands
	}
	b := &BandLevels{
		bands:  bands,
		ranges: make([][2]int, len(bands)),
		power:  make([]float64, src.GetNumBins()),
		levels: make([]float64, len(bands)),
	}
	nyquist := src.GetSampleRate() / 2
	for i, band := range bands {
		lo := FrequencyBin(band.LowHz, src.GetSampleRate(), src.GetFFTSize())
		hi := src.GetNumBins()
		if band.HighHz < nyquist {
			hi = FrequencyBin(band.HighHz, src.GetSampleRate(), src.GetFFTSize())
		}
		if hi < lo {
			hi = lo
		}
		b.ranges[i] = [2]int{lo, hi}
	}
	return b
}

// Bands returns the band definitions in output order.
func (b *BandLevels) Bands() []FrequencyBand { return b.bands }

// Compute returns the mean power of each band, in dB, for one frame. The
// returned slice is reused by the next call.
func (b *BandLevels) Compute(frameDB []float32) []float64 {
	n := min(len(frameDB), len(b.power))
	for i := 0; i < n; i++ {
		b.power[i] = math.Pow(10, float64(frameDB[i])/10)
	}
	for i, r := range b.ranges {
		lo, hi := r[0], min(r[1], n)
		if hi <= lo {
			b.levels[i] = FloorDB
			continue
		}
		mean := f64.Sum(b.power[lo:hi]) / float64(hi-lo)
		b.levels[i] = math.Max(FloorDB, 10*math.Log10(mean))
	}
	return b.levels
}

// Map returns the latest levels keyed by band name, the shape transports send.
func (b *BandLevels) Map() map[string]any {
	out := make(map[string]any, len(b.bands)+1)
	out["type"] = "band_levels"
	for i, band := range b.bands {
		out[band.Name] = b.levels[i]
	}
	return out
}
