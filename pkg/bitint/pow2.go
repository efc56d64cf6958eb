/*
Package bitint provides the power-of-two helpers used to size FFTs and
sample buffers. Everything here is allocation free and safe to call from the
real-time path.

Usage:

	// Round a requested FFT size up to something the analyser accepts
	size := bitint.NextPowerOfTwo(3000) // 4096

	// Convert a size back to its order (fftSize = 1 << order)
	order := bitint.Log2(4096) // 12

NextPowerOfTwo works on size-1 so that exact powers of two map to
themselves: for 8, bits.Len(7) is 3 and 1<<3 is 8, whereas bits.Len(8)
would give 4 and double the input.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Non-positive
// inputs return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of two
// has a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns floor(log2(n)) for n > 0, and -1 otherwise. For powers of
// two this is the exact exponent.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// PrevPowerOfTwo returns the largest power of 2 <= n, or 0 for n <= 0.
func PrevPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	return 1 << Log2(n)
}
