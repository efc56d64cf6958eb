// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions. Hann and BlackmanHarris are the two
// exposed by the analyser controls, the rest are accepted from config files.
const (
	Hann WindowFunc = iota
	BlackmanHarris
	Hamming
	Blackman
	BlackmanNuttall
	Nuttall
)

var windowNames = [...]string{
	Hann:            "hann",
	BlackmanHarris:  "blackmanharris",
	Hamming:         "hamming",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Nuttall:         "nuttall",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("window(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a string name (case-insensitive, '-' and '_'
// ignored) to a WindowFunc. Unknown names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
	switch key {
	case "hann", "hanning":
		return Hann, nil
	case "blackmanharris", "bh":
		return BlackmanHarris, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// BuildWindow fills coeffs with the symmetric (N-1 denominator) window of the
// given type. Unknown types fall back to Hann.
func BuildWindow(coeffs []float64, fn WindowFunc) {
	// The gonum window functions multiply in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	if len(coeffs) < 2 {
		return
	}
	switch fn {
	case BlackmanHarris:
		window.BlackmanHarris(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}

// NewWindowTable allocates and builds a window of length n.
func NewWindowTable(n int, fn WindowFunc) []float64 {
	coeffs := make([]float64, n)
	BuildWindow(coeffs, fn)
	return coeffs
}
