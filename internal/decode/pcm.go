// SPDX-License-Identifier: MIT
package decode

import "fmt"

// pcmScale returns the divisor that maps a signed integer sample of the
// given bit depth onto [-1, 1).
func pcmScale(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedCodec, bitDepth)
	}
}

// intsToFloat32 converts integer PCM as produced by go-audio decoders.
// unsigned8 selects offset-binary handling for 8-bit WAV data.
func intsToFloat32(data []int, bitDepth int, unsigned8 bool) ([]float32, error) {
	scale, err := pcmScale(bitDepth)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(data))
	if bitDepth == 8 && unsigned8 {
		for i, v := range data {
			out[i] = float32(v-128) / scale
		}
		return out, nil
	}

	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out, nil
}
