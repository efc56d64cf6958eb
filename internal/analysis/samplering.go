// SPDX-License-Identifier: MIT
package analysis

import "sync/atomic"

// SampleRing is a fixed-capacity, single-producer/single-consumer circular
// buffer of raw samples. The producer (real-time callback) owns the write
// cursor, the consumer (drain loop) owns the read cursor. Both cursors only
// ever increase; the slot index is cursor % capacity.
//
// Thread assignment:
//   - Push, GetFreeSpace: producer only
//   - Pop, GetNumReady: consumer only
//   - SetSize, Reset: neither side may be running
//
// Push publishes with an atomic store of the write cursor after the samples
// are copied and Pop loads it before copying, so the consumer never sees a
// partially written sample block. The same holds in reverse for freed space.
type SampleRing struct {
	// Separate cache lines so the two sides don't false-share.
	write atomic.Uint64
	_pad1 [56]byte
	read  atomic.Uint64
	_pad2 [56]byte

	buf []float32
}

// NewSampleRing allocates a ring holding up to capacity samples.
func NewSampleRing(capacity int) *SampleRing {
	r := &SampleRing{}
	r.SetSize(capacity)
	return r
}

// SetSize reallocates the storage and zeroes both cursors.
func (r *SampleRing) SetSize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	r.buf = make([]float32, capacity)
	r.Reset()
}

// Reset discards everything buffered.
func (r *SampleRing) Reset() {
	r.write.Store(0)
	r.read.Store(0)
}

// GetCapacity returns the total number of sample slots.
func (r *SampleRing) GetCapacity() int {
	return len(r.buf)
}

// GetFreeSpace returns how many samples Push can currently accept.
func (r *SampleRing) GetFreeSpace() int {
	return len(r.buf) - int(r.write.Load()-r.read.Load())
}

// GetNumReady returns how many samples Pop can currently return.
func (r *SampleRing) GetNumReady() int {
	return int(r.write.Load() - r.read.Load())
}

// Push copies as much of data as fits into the free space and returns the
// number of samples accepted. Samples that don't fit are dropped. Push never
// blocks and never allocates.
func (r *SampleRing) Push(data []float32) int {
	w := r.write.Load()
	rd := r.read.Load()

	size := uint64(len(r.buf))
	free := size - (w - rd)
	n := uint64(len(data))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	pos := w % size
	first := size - pos
	if first >= n {
		copy(r.buf[pos:pos+n], data[:n])
	} else {
		copy(r.buf[pos:], data[:first])
		copy(r.buf[:n-first], data[first:n])
	}

	r.write.Store(w + n)
	return int(n)
}

// Pop copies up to len(dest) ready samples into dest, advances the read
// cursor and returns the number copied.
func (r *SampleRing) Pop(dest []float32) int {
	rd := r.read.Load()
	w := r.write.Load()

	size := uint64(len(r.buf))
	n := uint64(len(dest))
	if ready := w - rd; n > ready {
		n = ready
	}
	if n == 0 {
		return 0
	}

	pos := rd % size
	first := size - pos
	if first >= n {
		copy(dest[:n], r.buf[pos:pos+n])
	} else {
		copy(dest[:first], r.buf[pos:])
		copy(dest[first:n], r.buf[:n-first])
	}

	r.read.Store(rd + n)
	return int(n)
}
