// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// inputGate meters each callback block and optionally silences blocks whose
// peak stays under the threshold. All state is atomic so the control side
// can change it while the callback runs.
type inputGate struct {
	enabled   atomic.Bool
	threshold atomic.Uint32 // float32 bits
	peak      atomic.Uint32 // float32 bits of the last block peak
}

func (e *Engine) EnableGate() {
	e.gate.enabled.Store(true)
}

func (e *Engine) DisableGate() {
	e.gate.enabled.Store(false)
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	e.gate.threshold.Store(math.Float32bits(float32(threshold)))
}

// GetGateThreshold returns the current noise gate threshold.
func (e *Engine) GetGateThreshold() float64 {
	return float64(math.Float32frombits(e.gate.threshold.Load()))
}

// GetInputPeak returns the absolute peak of the most recent callback block.
func (e *Engine) GetInputPeak() float32 {
	return math.Float32frombits(e.gate.peak.Load())
}

// apply records the block peak and reports whether the block should pass.
func (g *inputGate) apply(in []float32) bool {
	peak := blockPeak(in)
	g.peak.Store(math.Float32bits(peak))
	if !g.enabled.Load() {
		return true
	}
	return peak >= math.Float32frombits(g.threshold.Load())
}

func blockPeak(in []float32) float32 {
	var peak float32
	for _, s := range in {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
