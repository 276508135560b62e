// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size audio
buffers. Device block sizes are conventionally powers of two; the
configuration layer uses these to validate them and to suggest the
nearest legal value.

Usage:

	// Suggest a legal block size
	frames := bitint.NextPowerOfTwo(1000) // 1024

	// Validate a configured block size
	ok := bitint.IsPowerOfTwo(framesPerBuffer)

NextPowerOfTwo works on size-1 so that exact powers of two map to
themselves:

	size 8: bits.Len(7) = 3, 1<<3 = 8
	size 9: bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, and 1 for
// size <= 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has exactly one bit set, so clearing its lowest set bit leaves zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
