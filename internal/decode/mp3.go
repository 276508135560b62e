// SPDX-License-Identifier: MIT
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// MP3 decodes MPEG-1/2 layer III. go-mp3 always yields 16-bit little-endian
// stereo, so mono files come out with duplicated channels.
type MP3 struct{}

func (MP3) Decode(r io.ReadSeeker) (*Source, error) {
	d, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("open MP3 stream: %w", err)
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("read MP3 frames: %w", err)
	}

	data := make([]float32, len(raw)/2)
	for i := range data {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		data[i] = float32(v) / 32768.0
	}

	return NewSource("mp3", d.SampleRate(), 2, data)
}
