// SPDX-License-Identifier: MIT
package transport

import (
	"spectral/internal/analysis"
)

// Transport defines a generic interface for sending frames or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is one published analysis frame. The publisher reuses the same Frame
// for every send, so transports that keep it past Send must Clone it.
type Frame struct {
	Sequence    uint32
	Timestamp   int64 // Nanoseconds since epoch.
	SampleRate  float64
	FFTSize     int
	MagnitudeDB []float32
	Pan         []float32 // Empty for mono frames.
	Bands       []float64 // Per-band levels in dB, aligned with BandNames.
	BandNames   []string
}

// Stereo reports whether the frame carries pan values.
func (f *Frame) Stereo() bool { return len(f.Pan) > 0 }

// NumBins returns the number of magnitude values.
func (f *Frame) NumBins() int { return len(f.MagnitudeDB) }

// BinFrequency returns the centre frequency of bin.
func (f *Frame) BinFrequency(bin int) float64 {
	return analysis.BinFrequency(bin, f.SampleRate, f.FFTSize)
}

// Peak returns the loudest bin and its level. An empty frame reports (0, FloorDB).
func (f *Frame) Peak() (int, float32) {
	bin, level := 0, float32(analysis.FloorDB)
	for i, db := range f.MagnitudeDB {
		if db > level {
			bin, level = i, db
		}
	}
	return bin, level
}

// Clone returns a deep copy that does not share buffers with f.
func (f *Frame) Clone() *Frame {
	c := *f
	c.MagnitudeDB = append([]float32(nil), f.MagnitudeDB...)
	if len(f.Pan) > 0 {
		c.Pan = append([]float32(nil), f.Pan...)
	} else {
		c.Pan = nil
	}
	if f.Bands != nil {
		c.Bands = append([]float64(nil), f.Bands...)
	}
	return &c
}

// Snapshot implements utils.Snapshotter.
func (f *Frame) Snapshot() any { return f.Clone() }

// FrameMessage is the JSON shape of a frame on text transports.
type FrameMessage struct {
	Type        string             `json:"type"`
	Sequence    uint32             `json:"seq"`
	Timestamp   int64              `json:"ts"`
	SampleRate  float64            `json:"sampleRate"`
	FFTSize     int                `json:"fftSize"`
	MagnitudeDB []float32          `json:"magnitudeDb"`
	Pan         []float32          `json:"pan,omitempty"`
	Bands       map[string]float64 `json:"bands,omitempty"`
}

// NewFrameMessage copies f into a message safe to queue.
func NewFrameMessage(f *Frame) FrameMessage {
	msg := FrameMessage{
		Type:        "spectrum",
		Sequence:    f.Sequence,
		Timestamp:   f.Timestamp,
		SampleRate:  f.SampleRate,
		FFTSize:     f.FFTSize,
		MagnitudeDB: append([]float32(nil), f.MagnitudeDB...),
	}
	if f.Stereo() {
		msg.Pan = append([]float32(nil), f.Pan...)
	}
	if len(f.Bands) > 0 && len(f.Bands) == len(f.BandNames) {
		msg.Bands = make(map[string]float64, len(f.Bands))
		for i, name := range f.BandNames {
			msg.Bands[name] = f.Bands[i]
		}
	}
	return msg
}
