// SPDX-License-Identifier: MIT
package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
)

// AIFF decodes uncompressed AIFF/AIFC files.
type AIFF struct{}

func (AIFF) Decode(r io.ReadSeeker) (*Source, error) {
	d := aiff.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrNotAiffFile
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read AIFF samples: %w", err)
	}
	if buf.Format == nil {
		return nil, fmt.Errorf("%w: AIFF without COMM chunk", ErrCorruptFile)
	}

	data, err := intsToFloat32(buf.Data, int(d.BitDepth), false)
	if err != nil {
		return nil, err
	}

	return NewSource("aiff", buf.Format.SampleRate, buf.Format.NumChannels, data)
}
