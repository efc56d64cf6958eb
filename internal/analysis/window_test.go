// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"blackman-harris", BlackmanHarris, false},
		{"Blackman_Harris", BlackmanHarris, false},
		{"BH", BlackmanHarris, false},
		{"hamming", Hamming, false},
		{"blackman", Blackman, false},
		{"nuttall", Nuttall, false},
		{"triangle", Hann, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowFuncStringRoundTrip(t *testing.T) {
	for fn := Hann; fn <= Nuttall; fn++ {
		parsed, err := ParseWindowFunc(fn.String())
		require.NoError(t, err)
		assert.Equal(t, fn, parsed)
	}
	assert.Equal(t, "window(42)", WindowFunc(42).String())
}

func TestHannWindow(t *testing.T) {
	const n = 1025 // Odd so the centre sample is exactly 1.
	w := NewWindowTable(n, Hann)
	require.Len(t, w, n)

	assert.InDelta(t, 0.0, w[0], 1e-12)
	assert.InDelta(t, 0.0, w[n-1], 1e-12)
	assert.InDelta(t, 1.0, w[n/2], 1e-12)

	for i := 0; i < n; i++ {
		assert.InDelta(t, w[i], w[n-1-i], 1e-12, "asymmetric at %d", i)
		expected := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		assert.InDelta(t, expected, w[i], 1e-12)
	}
}

func TestBlackmanHarrisWindow(t *testing.T) {
	const n = 64
	w := NewWindowTable(n, BlackmanHarris)

	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n-1)
		expected := 0.35875 - 0.48829*math.Cos(x) + 0.14128*math.Cos(2*x) - 0.01168*math.Cos(3*x)
		assert.InDelta(t, expected, w[i], 1e-12, "sample %d", i)
	}
	// Endpoints are a0-a1+a2-a3.
	assert.InDelta(t, 6e-5, w[0], 1e-9)
}

func TestBuildWindowRebuildsInPlace(t *testing.T) {
	w := NewWindowTable(16, BlackmanHarris)
	BuildWindow(w, Hann)
	assert.Equal(t, NewWindowTable(16, Hann), w)
}

func TestBuildWindowDegenerate(t *testing.T) {
	w := NewWindowTable(1, Hann)
	assert.Equal(t, []float64{1}, w)
	assert.Empty(t, NewWindowTable(0, Hann))
}
