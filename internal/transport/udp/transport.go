// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"

	"github.com/google/uuid"

	applog "spectral/internal/log"
	"spectral/internal/transport"
)

// Transport encodes published frames as packets and sends them through a
// Sender. The packet buffer is reused, so Send does not allocate once it
// has grown to the frame size.
type Transport struct {
	sender   *Sender
	streamID uuid.UUID
	packet   []byte
}

// NewTransport wraps sender. streamID tags every packet so receivers can
// tell concurrent or restarted senders apart.
func NewTransport(sender *Sender, streamID uuid.UUID) (*Transport, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp transport: sender cannot be nil")
	}
	applog.Infof("UDP Transport: stream %s", streamID)
	return &Transport{
		sender:   sender,
		streamID: streamID,
		packet:   make([]byte, 0, PacketSize(MaxBins, true)),
	}, nil
}

// Dial resolves target and returns a ready Transport.
func Dial(target string, streamID uuid.UUID) (*Transport, error) {
	sender, err := NewSender(target)
	if err != nil {
		return nil, err
	}
	return NewTransport(sender, streamID)
}

// Send encodes a *transport.Frame and writes it. Other types are rejected.
func (t *Transport) Send(data any) error {
	f, ok := data.(*transport.Frame)
	if !ok {
		return fmt.Errorf("udp transport cannot send %T", data)
	}

	packet, err := EncodeFrame(t.packet[:0], t.streamID, f)
	if err != nil {
		return err
	}
	t.packet = packet
	return t.sender.Send(packet)
}

// StreamID returns the identifier written into each packet.
func (t *Transport) StreamID() uuid.UUID { return t.streamID }

// Close closes the sender.
func (t *Transport) Close() error { return t.sender.Close() }

var _ transport.Transport = (*Transport)(nil)
