// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectral/internal/analysis"
	"spectral/pkg/utils"
)

const (
	testSampleRate = 44100.0
	testFrequency  = 1000.0
)

func newTestAnalyser(t *testing.T, frames int) *analysis.MonoAnalyser {
	t.Helper()
	a := analysis.NewMonoAnalyserWithConfig(analysis.Config{
		SampleRate: testSampleRate,
		Order:      analysis.Order1024,
		Window:     analysis.Hann,
	})
	a.PushSamples(utils.GenerateSineWave(frames*1024, testSampleRate, testFrequency))
	require.Equal(t, frames, a.GetNumFramesAvailable())
	return a
}

type failingTransport struct{}

func (failingTransport) Send(any) error { return errors.New("unreachable") }
func (failingTransport) Close() error   { return nil }

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher(time.Millisecond, nil)
	assert.Error(t, err)

	p, err := NewPublisher(0, newTestAnalyser(t, 1))
	require.NoError(t, err)
	assert.Equal(t, 16*time.Millisecond, p.interval)
}

func TestPublisherDrain(t *testing.T) {
	mock := &utils.MockTransport{}
	p, err := NewPublisher(time.Hour, newTestAnalyser(t, 3), mock, failingTransport{})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Unix(0, 1234) }

	assert.Equal(t, 3, p.Drain())
	assert.Equal(t, 0, p.Drain())
	assert.Equal(t, uint64(3), p.Published())
	assert.Equal(t, uint64(3), p.SendErrors())

	require.Equal(t, 3, mock.Len())
	for i, msg := range mock.Messages {
		f, ok := msg.(*Frame)
		require.True(t, ok, "message %d is %T", i, msg)
		assert.Equal(t, uint32(i+1), f.Sequence, "sequence is monotonic")
		assert.Equal(t, int64(1234), f.Timestamp)
		assert.Equal(t, 1024, f.FFTSize)
		assert.Equal(t, testSampleRate, f.SampleRate)
		assert.Len(t, f.MagnitudeDB, 513)
		assert.False(t, f.Stereo())
		assert.Nil(t, f.Bands)

		bin, db := f.Peak()
		assert.InDelta(t, testFrequency, f.BinFrequency(bin), testSampleRate/1024)
		assert.Greater(t, db, float32(-20))
	}
}

func TestPublisherBands(t *testing.T) {
	mock := &utils.MockTransport{}
	p, err := NewPublisher(time.Hour, newTestAnalyser(t, 1), mock)
	require.NoError(t, err)
	p.SetBands(analysis.DefaultBands)

	require.Equal(t, 1, p.Drain())
	f := mock.Last().(*Frame)
	require.Len(t, f.Bands, len(analysis.DefaultBands))
	assert.Equal(t, "mid", f.BandNames[3])

	loudest := 0
	for i, level := range f.Bands {
		if level > f.Bands[loudest] {
			loudest = i
		}
	}
	assert.Equal(t, "mid", f.BandNames[loudest], "1 kHz lands in the mid band")

	msg := NewFrameMessage(f)
	assert.Equal(t, "spectrum", msg.Type)
	assert.Contains(t, msg.Bands, "treble")
	assert.Nil(t, msg.Pan)
}

func TestPublisherStereoFrames(t *testing.T) {
	a := analysis.NewStereoAnalyserWithConfig(analysis.Config{
		SampleRate: testSampleRate,
		Order:      analysis.Order1024,
	})
	left, right := utils.GenerateStereoSine(1024, testSampleRate, testFrequency, 1)
	a.PushSamples(left, right)

	mock := &utils.MockTransport{}
	p, err := NewPublisher(time.Hour, a, mock)
	require.NoError(t, err)
	require.Equal(t, 1, p.Drain())

	f := mock.Last().(*Frame)
	require.True(t, f.Stereo())
	bin, _ := f.Peak()
	assert.InDelta(t, 1, f.Pan[bin], 1e-6)
}

// swappedReader reports a new analyser while its frames still come from the
// one it replaced.
type swappedReader struct {
	old    *analysis.MonoAnalyser
	source analysis.FrameSource
}

func (r *swappedReader) Source() analysis.FrameSource              { return r.source }
func (r *swappedReader) ReadFrame(dest *analysis.StereoFrame) bool { return r.old.ReadFrame(dest) }

// sourceOnly hides ReadFrame so the publisher cannot read from the source.
type sourceOnly struct{ analysis.FrameSource }

func TestPublisherGeometryMatchesFrames(t *testing.T) {
	next := analysis.NewMonoAnalyserWithConfig(analysis.Config{
		SampleRate: testSampleRate,
		Order:      analysis.Order2048,
		Window:     analysis.Hann,
	})
	next.PushSamples(utils.GenerateSineWave(2048, testSampleRate, testFrequency))
	require.Equal(t, 1, next.GetNumFramesAvailable())

	t.Run("Reads from the reported source", func(t *testing.T) {
		mock := &utils.MockTransport{}
		p, err := NewPublisher(time.Hour, &swappedReader{old: newTestAnalyser(t, 3), source: next}, mock)
		require.NoError(t, err)
		p.SetBands(analysis.DefaultBands)

		assert.Equal(t, 1, p.Drain())
		f := mock.Last().(*Frame)
		assert.Equal(t, 2048, f.FFTSize)
		assert.Len(t, f.MagnitudeDB, 1025)
		assert.Len(t, f.Bands, len(analysis.DefaultBands))
	})

	t.Run("Skips mismatched frames", func(t *testing.T) {
		mock := &utils.MockTransport{}
		p, err := NewPublisher(time.Hour, &swappedReader{old: newTestAnalyser(t, 3), source: sourceOnly{next}}, mock)
		require.NoError(t, err)

		assert.Zero(t, p.Drain())
		assert.Zero(t, mock.Len())
		assert.Equal(t, uint64(3), p.Skipped())
	})
}

func TestPublisherStartStop(t *testing.T) {
	mock := &utils.MockTransport{}
	p, err := NewPublisher(time.Millisecond, newTestAnalyser(t, 2), mock)
	require.NoError(t, err)

	p.Start()
	p.Start() // no-op while running
	assert.Eventually(t, func() bool { return mock.Len() == 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	require.NoError(t, p.Close())
	assert.True(t, mock.Closed)
}

func TestFrameClone(t *testing.T) {
	f := &Frame{MagnitudeDB: []float32{1, 2}, Pan: []float32{}, Bands: []float64{3}}
	c := f.Clone()
	f.MagnitudeDB[0] = 9
	f.Bands[0] = 9
	assert.Equal(t, float32(1), c.MagnitudeDB[0])
	assert.Equal(t, 3.0, c.Bands[0])
	assert.Nil(t, c.Pan)
}

func TestFramePeakEmpty(t *testing.T) {
	bin, db := (&Frame{}).Peak()
	assert.Zero(t, bin)
	assert.Equal(t, float32(analysis.FloorDB), db)
}

func BenchmarkPublisherDrain(b *testing.B) {
	a := analysis.NewMonoAnalyserWithConfig(analysis.Config{
		SampleRate: testSampleRate,
		Order:      analysis.Order1024,
	})
	block := utils.GenerateSineWave(1024, testSampleRate, testFrequency)
	p, _ := NewPublisher(time.Hour, a, NewLoggingTransport(1))

	b.ReportAllocs()
	for b.Loop() {
		a.PushSamples(block)
		p.Drain()
	}
}
