// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebSocket(t *testing.T) (*WebSocketTransport, string) {
	t.Helper()
	return newTestWebSocketWait(t, writeWait)
}

func newTestWebSocketWait(t *testing.T, wait time.Duration) (*WebSocketTransport, string) {
	t.Helper()
	wst := newWebSocketTransport(wait)
	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(func() {
		wst.Close()
		srv.Close()
	})
	return wst, "ws" + strings.TrimPrefix(srv.URL, "http") + SpectrumPath
}

func dialClient(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketBroadcastsFrames(t *testing.T) {
	wst, url := newTestWebSocket(t)
	a, b := dialClient(t, url), dialClient(t, url)
	require.Eventually(t, func() bool { return wst.NumClients() == 2 }, 2*time.Second, 5*time.Millisecond)

	frame := &Frame{
		Sequence:    7,
		SampleRate:  48000,
		FFTSize:     8,
		MagnitudeDB: []float32{-100, -50, -3, -50, -100},
		Pan:         []float32{0, -0.5, 0.25, 0, 0},
		Bands:       []float64{-10},
		BandNames:   []string{"bass"},
	}
	require.NoError(t, wst.Send(frame))
	frame.MagnitudeDB[2] = 0 // the queued message must not change

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg FrameMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "spectrum", msg.Type)
		assert.Equal(t, uint32(7), msg.Sequence)
		assert.Equal(t, float32(-3), msg.MagnitudeDB[2])
		assert.Equal(t, float32(0.25), msg.Pan[2])
		assert.Equal(t, -10.0, msg.Bands["bass"])
	}
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst, url := newTestWebSocket(t)
	conn := dialClient(t, url)
	require.Eventually(t, func() bool { return wst.NumClients() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return wst.NumClients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketSendWithoutClients(t *testing.T) {
	wst, _ := newTestWebSocket(t)
	assert.NoError(t, wst.Send(&Frame{MagnitudeDB: []float32{1}}))
	assert.Zero(t, wst.Dropped())
}

func TestWebSocketSendDropsWhenQueueFull(t *testing.T) {
	wst := &WebSocketTransport{broadcast: make(chan any, 1)}
	assert.NoError(t, wst.Send("a"))
	assert.NoError(t, wst.Send("b"))
	assert.Equal(t, uint64(1), wst.Dropped())
}

func TestWebSocketStalledClientDoesNotBlockSend(t *testing.T) {
	wst, url := newTestWebSocketWait(t, 50*time.Millisecond)
	dialClient(t, url) // never reads
	require.Eventually(t, func() bool { return wst.NumClients() == 1 }, 2*time.Second, 5*time.Millisecond)

	frame := &Frame{FFTSize: 16384, MagnitudeDB: make([]float32, 8193), Pan: make([]float32, 8193)}
	for i := range frame.MagnitudeDB {
		frame.MagnitudeDB[i] = -42.125
	}

	// Socket buffers fill, the write deadline expires and the client goes.
	deadline := time.Now().Add(10 * time.Second)
	for wst.NumClients() > 0 {
		require.True(t, time.Now().Before(deadline), "stalled client was never dropped")
		start := time.Now()
		require.NoError(t, wst.Send(frame))
		require.Less(t, time.Since(start), 100*time.Millisecond, "Send blocked")
		time.Sleep(time.Millisecond)
	}

	// A fresh client still receives broadcasts once the backlog drains.
	conn := dialClient(t, url)
	require.Eventually(t, func() bool { return wst.NumClients() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, wst.Send("hello"))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg json.RawMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if string(msg) == `"hello"` {
			break
		}
	}
}

func TestWebSocketCloseTwice(t *testing.T) {
	wst := newWebSocketTransport(writeWait)
	assert.NoError(t, wst.Close())
	assert.NoError(t, wst.Close())
}
