// SPDX-License-Identifier: MIT
package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAV decodes integer PCM RIFF/WAVE files (8, 16, 24 and 32 bit).
type WAV struct{}

func (WAV) Decode(r io.ReadSeeker) (*Source, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrNotWavFile
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: WAV format tag %#x", ErrUnsupportedCodec, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read WAV samples: %w", err)
	}
	if buf.Format == nil {
		return nil, fmt.Errorf("%w: WAV without format chunk", ErrCorruptFile)
	}

	data, err := intsToFloat32(buf.Data, int(d.BitDepth), true)
	if err != nil {
		return nil, err
	}

	return NewSource("wav", buf.Format.SampleRate, buf.Format.NumChannels, data)
}
