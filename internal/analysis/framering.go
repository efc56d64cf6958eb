// SPDX-License-Identifier: MIT
package analysis

import "sync/atomic"

// frameSlot is one preallocated spectrum in a frameRing.
type frameSlot struct {
	magnitudeDB []float32
	pan         []float32 // nil for mono rings
}

// frameRing is a fixed-capacity single-producer/single-consumer ring of
// spectral frames. The producer (the analyser's FFT step) never blocks: once
// the consumer falls a full lap behind, the oldest unread frames are lost.
//
// Both counters increase monotonically. The producer fills slot write%N in
// place and then publishes it by storing write+1. Since the producer may be
// filling the very slot the consumer is copying, the consumer re-checks the
// write counter after each copy and throws the copy away if the producer got
// within reach of that slot. A torn frame is therefore never delivered, and
// at most N-1 frames are retained unread.
type frameRing struct {
	write atomic.Uint64
	_pad1 [56]byte
	read  atomic.Uint64
	_pad2 [56]byte

	dropped atomic.Uint64
	slots   []frameSlot
	numBins int
}

// resize reallocates every slot for numBins bins and resets both counters.
// Must not run concurrently with the producer or the consumer.
func (r *frameRing) resize(capacity, numBins int, withPan bool) {
	if capacity < 2 {
		capacity = 2
	}
	if len(r.slots) != capacity {
		r.slots = make([]frameSlot, capacity)
	}
	for i := range r.slots {
		s := &r.slots[i]
		s.magnitudeDB = resizeFilled(s.magnitudeDB, numBins, FloorDB)
		if withPan {
			s.pan = resizeFilled(s.pan, numBins, 0)
		} else {
			s.pan = nil
		}
	}
	r.numBins = numBins
	r.write.Store(0)
	r.read.Store(0)
	r.dropped.Store(0)
}

// next returns the slot the producer should fill for the next frame.
func (r *frameRing) next() *frameSlot {
	if len(r.slots) == 0 {
		return nil
	}
	return &r.slots[r.write.Load()%uint64(len(r.slots))]
}

// publish makes the slot returned by next visible to the consumer.
func (r *frameRing) publish() {
	r.write.Store(r.write.Load() + 1)
}

// pull copies the oldest intact unread frame into dstMag (and dstPan when
// both are non-nil). It returns false without side effects when empty.
func (r *frameRing) pull(dstMag, dstPan []float32) bool {
	size := uint64(len(r.slots))
	if size == 0 {
		return false
	}

	rd := r.read.Load()
	for {
		w := r.write.Load()
		if rd == w {
			return false
		}
		// Slot rd%size is only safe while the producer is less than a
		// full lap ahead.
		if w-rd >= size {
			keep := w - (size - 1)
			r.dropped.Add(keep - rd)
			rd = keep
		}

		s := &r.slots[rd%size]
		copy(dstMag, s.magnitudeDB)
		if dstPan != nil && s.pan != nil {
			copy(dstPan, s.pan)
		}

		if r.write.Load()-rd < size {
			r.read.Store(rd + 1)
			return true
		}
		// Overwritten while copying, skip ahead and try again.
	}
}

// available returns the number of frames pull would currently deliver.
func (r *frameRing) available() int {
	size := uint64(len(r.slots))
	if size == 0 {
		return 0
	}
	n := r.write.Load() - r.read.Load()
	if n > size-1 {
		n = size - 1
	}
	return int(n)
}

func resizeFilled(s []float32, n int, fill float32) []float32 {
	if cap(s) < n {
		s = make([]float32, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = fill
	}
	return s
}
