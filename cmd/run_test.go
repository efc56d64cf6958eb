// SPDX-License-Identifier: MIT
package cmd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectral/internal/analysis"
	"spectral/internal/audio"
	"spectral/internal/config"
	"spectral/internal/transport/udp"
	"spectral/internal/tui"
	"spectral/pkg/build"
	"spectral/pkg/utils"
)

func TestApplySelection(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.Stereo = true

	applySelection(cfg, &tui.Selection{
		Device:     audio.Device{ID: 3, MaxInputChannels: 1},
		SampleRate: 48000,
	})
	assert.Equal(t, 3, cfg.Audio.InputDevice)
	assert.Equal(t, 48000.0, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.InputChannels)
	assert.False(t, cfg.Analysis.Stereo)
	assert.NoError(t, cfg.Validate())
}

func TestBuildPublisherSendsUDP(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	cfg := config.Default()
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = listener.LocalAddr().String()

	a := analysis.NewMonoAnalyserWithConfig(analysis.Config{SampleRate: testSampleRate, Order: analysis.Order1024})
	a.PushSamples(utils.GenerateSineWave(1024, testSampleRate, testFrequency))

	publisher, err := buildPublisher(cfg, a)
	require.NoError(t, err)
	defer publisher.Close()
	require.Equal(t, 1, publisher.Drain())

	buf := make([]byte, 65536)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	p, err := udp.DecodeFrame(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, build.GetBuildFlags().InstanceID, p.StreamID)
	assert.Equal(t, uint32(1), p.Frame.Sequence)
	assert.Equal(t, 1024, p.Frame.FFTSize)
	assert.Len(t, p.Frame.MagnitudeDB, 513)
}

func TestBuildPublisherBadTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = "no-port"

	_, err := buildPublisher(cfg, analysis.NewMonoAnalyser())
	assert.Error(t, err)
}
