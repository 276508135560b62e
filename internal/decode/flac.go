// SPDX-License-Identifier: MIT
package decode

import (
	"fmt"
	"io"

	"github.com/gopxl/beep/flac"
)

// FLAC decodes through beep's streamer, which hands out stereo pairs; files
// with more than two channels keep the first two.
type FLAC struct{}

func (FLAC) Decode(r io.ReadSeeker) (*Source, error) {
	s, format, err := flac.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("open FLAC stream: %w", err)
	}
	defer s.Close()

	channels := min(format.NumChannels, 2)
	data := make([]float32, 0, max(s.Len(), 0)*channels)

	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			data = append(data, float32(frame[0]))
			if channels == 2 {
				data = append(data, float32(frame[1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read FLAC frames: %w", err)
	}

	return NewSource("flac", int(format.SampleRate), channels, data)
}
