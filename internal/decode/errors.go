// SPDX-License-Identifier: MIT
package decode

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat means no registered decoder accepts the file.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrCorruptFile means a decoder recognised the file but could not decode it.
	ErrCorruptFile = errors.New("corrupt audio file")

	ErrNotWavFile       = fmt.Errorf("%w: not a WAV file", ErrCorruptFile)
	ErrNotAiffFile      = fmt.Errorf("%w: not an AIFF file", ErrCorruptFile)
	ErrUnsupportedCodec = fmt.Errorf("%w: sample encoding", ErrUnsupportedFormat)
)
