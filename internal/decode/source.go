// SPDX-License-Identifier: MIT
/*
Package decode turns sound files into memory-resident, immutable sample
sources.

Every supported format is decoded in full when the file is loaded, so the
real-time render path only ever indexes into a float32 slice:

  - no I/O after construction
  - no allocation on read
  - safe for concurrent readers

Wrap-around (looping) is never performed here; callers that loop address
frames modulo Frames() themselves.
*/
package decode

import (
	"fmt"
	"time"
)

// Source is a decoded sound file. It is immutable once constructed.
type Source struct {
	path       string
	format     string
	sampleRate int
	channels   int
	frames     int
	data       []float32 // interleaved, [-1, 1]
}

// NewSource wraps interleaved samples. Trailing samples that do not form a
// whole frame are dropped.
func NewSource(format string, sampleRate, channels int, data []float32) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrCorruptFile, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrCorruptFile, channels)
	}

	frames := len(data) / channels
	return &Source{
		format:     format,
		sampleRate: sampleRate,
		channels:   channels,
		frames:     frames,
		data:       data[:frames*channels],
	}, nil
}

func (s *Source) Path() string    { return s.path }
func (s *Source) Format() string  { return s.format }
func (s *Source) SampleRate() int { return s.sampleRate }
func (s *Source) Channels() int   { return s.channels }
func (s *Source) Frames() int     { return s.frames }

// Duration is the length of the source at its native sample rate.
func (s *Source) Duration() time.Duration {
	return time.Duration(float64(s.frames) / float64(s.sampleRate) * float64(time.Second))
}

// Seconds is Duration as a float, for position arithmetic.
func (s *Source) Seconds() float64 {
	return float64(s.frames) / float64(s.sampleRate)
}

// Sample returns one sample. frame must lie in [0, Frames()) and ch in
// [0, Channels()).
func (s *Source) Sample(frame, ch int) float32 {
	return s.data[frame*s.channels+ch]
}

// ReadFrames copies interleaved frames starting at startFrame into dst and
// returns the number of frames copied. Reads stop at the end of the source;
// they never wrap.
func (s *Source) ReadFrames(dst []float32, startFrame int) int {
	if startFrame < 0 || startFrame >= s.frames {
		return 0
	}
	n := copy(dst, s.data[startFrame*s.channels:])
	return n / s.channels
}
