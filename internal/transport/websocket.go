// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "spectral/internal/log"
)

// SpectrumPath is where clients connect to receive frames.
const SpectrumPath = "/spectrum"

// broadcastQueue bounds the messages waiting for the broadcast goroutine.
const broadcastQueue = 256

// writeWait is how long a single client write may block before the client
// is dropped.
const writeWait = 2 * time.Second

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Frames are converted to FrameMessage JSON and fanned out to
// every connected client by a single broadcast goroutine.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	writeWait time.Duration
	server    *http.Server
	dropped   uint64 // guarded by clientsMu
	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketTransport creates a WebSocketTransport and starts serving on addr.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := newWebSocketTransport(writeWait)
	wst.addr = addr
	wst.listen()
	return wst
}

// newWebSocketTransport builds the hub and starts the broadcast goroutine
// without listening, so it can be mounted on any server.
func newWebSocketTransport(wait time.Duration) *WebSocketTransport {
	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualisers are served from anywhere.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastQueue),
		writeWait: wait,
		done:      make(chan struct{}),
	}
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the mux serving SpectrumPath.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SpectrumPath, wst.handleWebSocket)
	return mux
}

func (wst *WebSocketTransport) listen() {
	wst.server = &http.Server{
		Addr:    wst.addr,
		Handler: wst.Handler(),
	}

	go func() {
		applog.Infof("WebSocketTransport: serving ws://%s%s", wst.addr, SpectrumPath)
		if err := wst.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Clients never send anything; the first read error means they left.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.removeClient(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients. Writes happen
// outside clientsMu so a stalled client never blocks Send or NumClients;
// the write deadline bounds how long it can hold up the others.
func (wst *WebSocketTransport) handleBroadcasts() {
	var targets []*websocket.Conn
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			targets = targets[:0]
			wst.clientsMu.Lock()
			for client := range wst.clients {
				targets = append(targets, client)
			}
			wst.clientsMu.Unlock()

			for _, client := range targets {
				client.SetWriteDeadline(time.Now().Add(wst.writeWait))
				if err := client.WriteJSON(data); err != nil {
					applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
					wst.removeClient(client)
				}
			}
		}
	}
}

// Send queues data for broadcast. Frames are copied into a FrameMessage.
// When the queue is full the message is dropped rather than blocking the
// publisher.
func (wst *WebSocketTransport) Send(data any) error {
	if f, ok := data.(*Frame); ok {
		if wst.NumClients() == 0 {
			return nil
		}
		data = NewFrameMessage(f)
	}

	select {
	case wst.broadcast <- data:
	default:
		wst.clientsMu.Lock()
		wst.dropped++
		wst.clientsMu.Unlock()
	}
	return nil
}

// NumClients returns the number of connected clients.
func (wst *WebSocketTransport) NumClients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped returns the number of messages discarded because the queue was full.
func (wst *WebSocketTransport) Dropped() uint64 {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return wst.dropped
}

// Close shuts down the WebSocket server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Infof("WebSocketTransport: Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
