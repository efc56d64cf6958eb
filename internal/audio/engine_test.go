// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectral/internal/analysis"
	"spectral/internal/config"
	"spectral/pkg/utils"
)

const (
	testSampleRate = 44100.0
	testFrameSize  = 512
	testFrequency  = 1000.0
)

func newTestEngine(t testing.TB, mutate func(*config.Config)) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = testSampleRate
	cfg.Audio.FramesPerBuffer = testFrameSize
	cfg.Recording.OutputDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	return newEngine(cfg)
}

// feed delivers interleaved audio to the callback in device-sized blocks.
func feed(e *Engine, interleaved []float32) {
	block := testFrameSize * e.channels
	for start := 0; start < len(interleaved); start += block {
		end := min(start+block, len(interleaved))
		e.processInputStream(interleaved[start:end])
	}
}

func TestEngineMonoDownmix(t *testing.T) {
	e := newTestEngine(t, nil)
	require.False(t, e.IsStereo())

	left, right := utils.GenerateStereoSine(8192, testSampleRate, testFrequency, 0)
	feed(e, utils.Interleave(left, right))
	assert.Equal(t, 8192, e.drain(), "ring carries the mono downmix")

	src := e.Analyser()
	require.Equal(t, 4096, src.GetFFTSize())
	require.Equal(t, 3, src.GetNumFramesAvailable())

	peak := analysis.FrequencyBin(testFrequency, testSampleRate, 4096)
	frame := make([]float32, src.GetNumBins())
	for i := 0; i < 3; i++ {
		require.True(t, e.PullMono(frame))
		assert.Equal(t, peak, utils.FindPeakBin(frame, 0, len(frame)-1))
	}
	assert.False(t, e.PullMono(frame))
	assert.False(t, e.PullStereo(analysis.NewStereoFrame(1)))

	stats := e.Stats()
	assert.Equal(t, uint64(16), stats.Callbacks)
	assert.Equal(t, uint64(8192), stats.SamplesAnalysed)
	assert.Zero(t, stats.OverflowSamples)
}

func TestEngineMonoDownmixCancels(t *testing.T) {
	e := newTestEngine(t, nil)

	left := utils.GenerateSineWave(4096, testSampleRate, testFrequency)
	right := make([]float32, len(left))
	for i, s := range left {
		right[i] = -s
	}
	feed(e, utils.Interleave(left, right))
	e.drain()

	frame := make([]float32, e.Analyser().GetNumBins())
	require.True(t, e.PullMono(frame))
	for bin, db := range frame {
		require.Equal(t, float32(analysis.FloorDB), db, "bin %d", bin)
	}
}

func TestEngineStereo(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.Analysis.Stereo = true })
	require.True(t, e.IsStereo())
	require.True(t, e.Analyser().IsStereo())

	left, right := utils.GenerateStereoSine(4096, testSampleRate, testFrequency, -1)
	feed(e, utils.Interleave(left, right))
	assert.Equal(t, 8192, e.drain())
	assert.Equal(t, uint64(4096), e.Stats().SamplesAnalysed)

	frame := &analysis.StereoFrame{}
	require.True(t, e.PullStereo(frame))
	peak := analysis.FrequencyBin(testFrequency, testSampleRate, 4096)
	assert.Equal(t, peak, utils.FindPeakBin(frame.MagnitudeDB, 0, len(frame.MagnitudeDB)-1))
	assert.InDelta(t, -1, frame.Pan[peak], 1e-6)

	assert.False(t, e.PullMono(make([]float32, 8)))
}

func TestEngineReadFrameBothModes(t *testing.T) {
	for _, stereo := range []bool{false, true} {
		e := newTestEngine(t, func(c *config.Config) { c.Analysis.Stereo = stereo })
		left, right := utils.GenerateStereoSine(4096, testSampleRate, testFrequency, 0)
		feed(e, utils.Interleave(left, right))
		e.drain()

		frame := &analysis.StereoFrame{}
		require.True(t, e.ReadFrame(frame))
		assert.Len(t, frame.MagnitudeDB, e.Source().GetNumBins())
		if stereo {
			assert.Len(t, frame.Pan, e.Source().GetNumBins())
		} else {
			assert.Empty(t, frame.Pan)
		}
	}
}

func TestEngineOverflowKeepsWholeFrames(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Analysis.Stereo = true
		c.Analysis.RingSeconds = 0.01 // rounds up to one buffer of frames
	})
	require.Equal(t, testFrameSize*2, e.ring.GetCapacity())

	e.processInputStream(make([]float32, 300*2))
	e.processInputStream(make([]float32, testFrameSize*2))

	assert.Equal(t, 1024, e.ring.GetNumReady())
	assert.Equal(t, uint64(600), e.Stats().OverflowSamples)
	assert.Zero(t, e.ring.GetNumReady()%2)
}

func TestEngineReconfigure(t *testing.T) {
	e := newTestEngine(t, nil)
	e.Reconfigure(analysis.Config{Order: analysis.Order1024, Window: analysis.BlackmanHarris})

	assert.Equal(t, 4096, e.Analyser().GetFFTSize(), "swap happens on the drain side")

	feed(e, make([]float32, 2048*2))
	e.drain()

	src := e.Analyser()
	assert.Equal(t, 1024, src.GetFFTSize())
	assert.Equal(t, testSampleRate, src.GetSampleRate(), "sample rate follows the device")
	assert.Equal(t, 2, src.GetNumFramesAvailable())
	assert.Equal(t, uint64(1), e.Stats().Reconfigures)

	e.drain()
	assert.Equal(t, uint64(1), e.Stats().Reconfigures, "request is applied once")
}

func TestEngineDroppedFramesSurviveReconfigure(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Analysis.FFTOrder = 10
		c.Analysis.Overlap = 0.875
	})

	// 80000 samples at a hop of 128 produce more frames than the ring keeps.
	feed(e, utils.Interleave(make([]float32, 80000), make([]float32, 80000)))
	e.drain()
	require.True(t, e.PullMono(make([]float32, e.Analyser().GetNumBins())))
	dropped := e.Stats().DroppedFrames
	require.Positive(t, dropped)

	e.Reconfigure(analysis.Config{Order: analysis.Order2048, Window: analysis.Hann})
	e.drain()
	require.Equal(t, 2048, e.Analyser().GetFFTSize())
	assert.Zero(t, e.Analyser().GetDroppedFrames())
	assert.Equal(t, dropped, e.Stats().DroppedFrames)
}

func TestEngineCallbackZeroAllocs(t *testing.T) {
	for _, stereo := range []bool{false, true} {
		e := newTestEngine(t, func(c *config.Config) { c.Analysis.Stereo = stereo })
		left, right := utils.GenerateStereoSine(testFrameSize, testSampleRate, testFrequency, 0.3)
		block := utils.Interleave(left, right)

		allocs := testing.AllocsPerRun(200, func() {
			e.processInputStream(block)
		})
		assert.Zero(t, allocs, "stereo=%v", stereo)
	}
}

type fakeStream struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	closed   bool
	startErr error
	stopErr  error
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return s.startErr
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.stopErr
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func withFakeStream(t *testing.T, stream *fakeStream, openErr error) (*portaudio.StreamParameters, *func([]float32)) {
	t.Helper()
	var params portaudio.StreamParameters
	var callback func([]float32)
	orig := openStream
	t.Cleanup(func() { openStream = orig })
	openStream = func(p portaudio.StreamParameters, cb func(in []float32)) (inputStream, error) {
		if openErr != nil {
			return nil, openErr
		}
		params, callback = p, cb
		return stream, nil
	}
	return &params, &callback
}

func TestEngineStartStop(t *testing.T) {
	stream := &fakeStream{}
	params, callback := withFakeStream(t, stream, nil)

	e := newTestEngine(t, func(c *config.Config) { c.Analysis.DrainInterval = time.Millisecond })
	require.NoError(t, e.Start(context.Background()))

	assert.Equal(t, 2, params.Input.Channels)
	assert.Equal(t, testFrameSize, params.FramesPerBuffer)
	assert.Equal(t, testSampleRate, params.SampleRate)
	assert.Zero(t, params.Output.Channels)
	require.NotNil(t, *callback)

	left, right := utils.GenerateStereoSine(4096, testSampleRate, testFrequency, 0)
	data := utils.Interleave(left, right)
	for start := 0; start < len(data); start += testFrameSize * 2 {
		(*callback)(data[start : start+testFrameSize*2])
	}

	assert.Eventually(t, func() bool {
		return e.Analyser().GetNumFramesAvailable() == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, e.Close())
	assert.True(t, stream.started)
	assert.True(t, stream.stopped)
	assert.True(t, stream.closed)
	assert.NoError(t, e.Stop(), "stopping twice is a no-op")
}

func TestEngineStartErrors(t *testing.T) {
	t.Run("Open fails", func(t *testing.T) {
		withFakeStream(t, nil, errors.New("device busy"))
		e := newTestEngine(t, nil)
		assert.ErrorContains(t, e.Start(context.Background()), "device busy")
	})

	t.Run("Start fails", func(t *testing.T) {
		stream := &fakeStream{startErr: errors.New("no clock")}
		withFakeStream(t, stream, nil)
		e := newTestEngine(t, nil)
		assert.ErrorContains(t, e.Start(context.Background()), "no clock")
		assert.True(t, stream.closed)
		assert.Nil(t, e.inputStream)
	})
}

func TestEngineCloseAfterStreamError(t *testing.T) {
	stream := &fakeStream{stopErr: errors.New("host error")}
	withFakeStream(t, stream, nil)

	e := newTestEngine(t, func(c *config.Config) { c.Analysis.DrainInterval = time.Millisecond })
	require.NoError(t, e.Start(context.Background()))
	filename, err := e.StartRecordingIn(t.TempDir())
	require.NoError(t, err)

	left, right := utils.GenerateStereoSine(4096, testSampleRate, testFrequency, 0)
	feed(e, utils.Interleave(left, right))

	err = e.Close()
	assert.ErrorContains(t, err, "host error")
	assert.True(t, stream.closed, "close runs even when stop fails")
	assert.Nil(t, e.cancel, "drain goroutine has exited")
	assert.False(t, e.IsRecording())
	assert.Equal(t, uint64(4096), e.Stats().SamplesAnalysed, "final drain ran")

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 4096)

	assert.NoError(t, e.Stop(), "stream is released after a failed stop")
}

func BenchmarkEngineCallback(b *testing.B) {
	e := newTestEngine(b, nil)
	left, right := utils.GenerateStereoSine(testFrameSize, testSampleRate, testFrequency, 0)
	block := utils.Interleave(left, right)

	b.ReportAllocs()
	for b.Loop() {
		e.processInputStream(block)
		e.ring.Reset()
	}
}

func BenchmarkEngineDrain(b *testing.B) {
	e := newTestEngine(b, nil)
	left, right := utils.GenerateStereoSine(testFrameSize, testSampleRate, testFrequency, 0)
	block := utils.Interleave(left, right)
	frame := make([]float32, e.Analyser().GetNumBins())

	b.ReportAllocs()
	for b.Loop() {
		e.processInputStream(block)
		e.drain()
		for e.PullMono(frame) {
		}
	}
}
