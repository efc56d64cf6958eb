// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	applog "spectral/internal/log"
)

// LoggingTransport implements the Transport interface by logging a one-line
// summary of each frame at debug level. Every Nth frame is logged so a 60 Hz
// stream stays readable.
type LoggingTransport struct {
	every uint32
	count atomic.Uint32
}

// NewLoggingTransport creates a LoggingTransport that logs one frame in every.
func NewLoggingTransport(every int) *LoggingTransport {
	if every < 1 {
		every = 1
	}
	applog.Infof("Transport: Using LoggingTransport (1 in %d frames)", every)
	return &LoggingTransport{every: uint32(every)}
}

// Send logs frames; other values are logged with %v.
func (lt *LoggingTransport) Send(data any) error {
	if lt.count.Add(1)%lt.every != 0 || !applog.IsDebug() {
		return nil
	}

	f, ok := data.(*Frame)
	if !ok {
		applog.WithComponent("transport").Debugf("message %T: %v", data, data)
		return nil
	}

	bin, db := f.Peak()
	fields := applog.Fields{
		"seq":     f.Sequence,
		"fft":     f.FFTSize,
		"peak_hz": f.BinFrequency(bin),
		"peak_db": db,
	}
	if f.Stereo() {
		fields["pan"] = f.Pan[bin]
	}
	applog.WithFields(fields).Debug("frame")
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
