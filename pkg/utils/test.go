package utils

import (
	"math"
	"sync"
)

// Snapshotter is implemented by messages whose buffers the sender reuses.
type Snapshotter interface {
	Snapshot() any
}

// MockTransport implements the Transport interface for testing.
type MockTransport struct {
	mu       sync.Mutex
	Messages []any
	Closed   bool
}

// Send stores the message for later inspection instead of transmitting.
// Float slices are copied so callers may reuse their buffers.
func (m *MockTransport) Send(data any) error {
	switch v := data.(type) {
	case Snapshotter:
		data = v.Snapshot()
	case []float32:
		data = append([]float32(nil), v...)
	case []float64:
		data = append([]float64(nil), v...)
	}
	m.mu.Lock()
	m.Messages = append(m.Messages, data)
	m.mu.Unlock()
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Len returns the number of messages received so far.
func (m *MockTransport) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// Last returns the most recent message, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return nil
	}
	return m.Messages[len(m.Messages)-1]
}

func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2 // 440Hz fundamental + harmonics
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	return GenerateSineWaveAmplitude(size, sampleRate, frequency, 1.0)
}

func GenerateSineWaveAmplitude(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateStereoSine returns left and right channels of the same sine with
// constant-power panning; pan -1 is hard left, +1 hard right.
func GenerateStereoSine(size int, sampleRate, frequency, pan float64) (left, right []float32) {
	pan = math.Max(-1, math.Min(1, pan))
	angle := (pan + 1) * math.Pi / 4
	left = GenerateSineWaveAmplitude(size, sampleRate, frequency, math.Cos(angle))
	right = GenerateSineWaveAmplitude(size, sampleRate, frequency, math.Sin(angle))
	// cos/sin of 0 and pi/2 are not exact zeros in floating point.
	if pan == -1 {
		clear(right)
	} else if pan == 1 {
		clear(left)
	}
	return left, right
}

// Interleave packs two channels into one L/R buffer.
func Interleave(left, right []float32) []float32 {
	n := min(len(left), len(right))
	out := make([]float32, 2*n)
	for i := 0; i < n; i++ {
		out[2*i] = left[i]
		out[2*i+1] = right[i]
	}
	return out
}

func GenerateSilence(size int) []float32 {
	return make([]float32, size)
}

func FindPeakBin[T ~float32 | ~float64](magnitudes []T, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
