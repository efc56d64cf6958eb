// SPDX-License-Identifier: MIT
package analysis

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func TestSampleRingPushDropsExcess(t *testing.T) {
	r := NewSampleRing(8)
	assert.Equal(t, 8, r.GetCapacity())
	assert.Equal(t, 8, r.GetFreeSpace())

	accepted := r.Push(seq(0, 10))
	assert.Equal(t, 8, accepted)
	assert.Equal(t, 0, r.GetFreeSpace())
	assert.Equal(t, 8, r.GetNumReady())
	assert.Equal(t, 8, r.GetCapacity(), "storage must never grow")

	assert.Equal(t, 0, r.Push(seq(100, 1)))
}

func TestSampleRingWrapAround(t *testing.T) {
	r := NewSampleRing(8)
	r.Push(seq(0, 10))

	dest := make([]float32, 5)
	require.Equal(t, 5, r.Pop(dest))
	assert.Equal(t, seq(0, 5), dest)

	assert.Equal(t, 4, r.Push(seq(100, 4)))
	assert.Equal(t, 7, r.GetNumReady())

	dest = make([]float32, 10)
	n := r.Pop(dest)
	require.Equal(t, 7, n)
	assert.Equal(t, []float32{5, 6, 7, 100, 101, 102, 103}, dest[:n])
	assert.Equal(t, 0, r.GetNumReady())
	assert.Equal(t, 8, r.GetFreeSpace())
}

func TestSampleRingPopNeverExceedsReady(t *testing.T) {
	r := NewSampleRing(16)
	r.Push(seq(0, 3))

	dest := make([]float32, 16)
	assert.Equal(t, 3, r.Pop(dest))
	assert.Equal(t, 0, r.Pop(dest))
}

func TestSampleRingReset(t *testing.T) {
	r := NewSampleRing(4)
	r.Push(seq(0, 3))
	r.Reset()
	assert.Equal(t, 0, r.GetNumReady())
	assert.Equal(t, 4, r.GetFreeSpace())

	r.SetSize(32)
	assert.Equal(t, 32, r.GetCapacity())
	assert.Equal(t, 32, r.GetFreeSpace())

	r.SetSize(0)
	assert.Equal(t, 1, r.GetCapacity())
}

func TestSampleRingZeroAllocs(t *testing.T) {
	r := NewSampleRing(4096)
	in := seq(0, 512)
	out := make([]float32, 512)

	allocs := testing.AllocsPerRun(100, func() {
		r.Push(in)
		r.Pop(out)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Push/Pop, got %.1f", allocs)
	}
}

// The consumer must see every accepted sample exactly once and in order.
func TestSampleRingConcurrentOrdering(t *testing.T) {
	const total = 200_000
	r := NewSampleRing(1024)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := 0
		block := make([]float32, 100)
		for next < total {
			n := min(len(block), total-next)
			for i := 0; i < n; i++ {
				block[i] = float32(next + i)
			}
			next += r.Push(block[:n])
		}
	}()

	got := 0
	dest := make([]float32, 77)
	for got < total {
		n := r.Pop(dest)
		for i := 0; i < n; i++ {
			if dest[i] != float32(got) {
				t.Fatalf("sample %d: got %v", got, dest[i])
			}
			got++
		}
	}
	wg.Wait()
	assert.Equal(t, 0, r.GetNumReady())
}

func BenchmarkSampleRingPushPop(b *testing.B) {
	r := NewSampleRing(88200)
	block := seq(0, 512)
	dest := make([]float32, 512)

	b.ReportAllocs()
	for b.Loop() {
		r.Push(block)
		r.Pop(dest)
	}
}
