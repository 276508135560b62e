// SPDX-License-Identifier: MIT
/*
Package track implements the per-track playback transport.

A Transport owns one decoded source and a looping cursor. The real-time
goroutine calls Render once per block; the control goroutine calls Start,
Stop, Release and the position queries concurrently. All state shared
between the two is held in atomics, so neither side ever waits on the
other.
*/
package track

import (
	"math"
	"sync/atomic"

	"mixdeck/internal/decode"
)

// State is the transport state machine: Stopped or Playing.
type State int32

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

type Transport struct {
	id  int
	src *decode.Source

	playing  atomic.Bool
	released atomic.Bool
	cursor   atomic.Uint64 // float64 bits; source frames in [0, Frames())
	step     atomic.Uint64 // float64 bits; source frames per output frame

	// Output channel count, fixed by Prepare before the transport is
	// published to the mixer.
	channels int
}

// New creates a stopped transport over src. It renders silence until
// Prepare has been called.
func New(id int, src *decode.Source) *Transport {
	return &Transport{id: id, src: src}
}

func (t *Transport) ID() int                { return t.id }
func (t *Transport) Source() *decode.Source { return t.src }

// Prepare sets the output format. It must not run concurrently with Render
// for a different channel count.
func (t *Transport) Prepare(sampleRate float64, channels int) {
	if sampleRate <= 0 || channels <= 0 || t.src == nil {
		t.step.Store(0)
		return
	}
	t.channels = channels
	t.step.Store(math.Float64bits(float64(t.src.SampleRate()) / sampleRate))
}

// Start moves Stopped to Playing. Idempotent.
func (t *Transport) Start() {
	t.playing.Store(true)
}

// Stop moves Playing to Stopped. Idempotent. The cursor keeps its value.
func (t *Transport) Stop() {
	t.playing.Store(false)
}

func (t *Transport) State() State {
	if t.playing.Load() {
		return Playing
	}
	return Stopped
}

func (t *Transport) IsPlaying() bool { return t.playing.Load() }

// Release stops the transport for good. A released transport that is still
// referenced by an in-flight render renders silence.
func (t *Transport) Release() {
	t.playing.Store(false)
	t.released.Store(true)
}

func (t *Transport) Released() bool { return t.released.Load() }

// Length is the source length in seconds, 0 for an empty source.
func (t *Transport) Length() float64 {
	if t.src == nil {
		return 0
	}
	return t.src.Seconds()
}

// Position is the wrapped cursor in seconds.
func (t *Transport) Position() float64 {
	if t.src == nil || t.src.Frames() == 0 {
		return 0
	}
	return math.Float64frombits(t.cursor.Load()) / float64(t.src.SampleRate())
}

// PositionRelative is fmod(position, length) / length, always in [0, 1).
func (t *Transport) PositionRelative() float64 {
	length := t.Length()
	if length <= 0 {
		return 0
	}
	rel := math.Mod(t.Position(), length) / length
	if rel < 0 || rel >= 1 {
		return 0
	}
	return rel
}

// Render writes frames interleaved frames of the transport's output into
// dst and advances the cursor, wrapping at the end of the source. When the
// transport has nothing to contribute it zero-fills dst and returns false.
// Render does not allocate.
func (t *Transport) Render(dst []float64, frames int) bool {
	if !t.Active() {
		clear(dst[:frames*max(t.channels, 1)])
		return false
	}
	return t.RenderActive(dst, frames)
}

// Active reports whether Render would contribute audio right now.
func (t *Transport) Active() bool {
	return t.playing.Load() && !t.released.Load() &&
		math.Float64frombits(t.step.Load()) > 0 && t.src != nil && t.src.Frames() > 0
}

// RenderActive is Render without the playing and released checks. A caller
// that checked Active once can render a long block in several calls, so a
// concurrent Stop or Release never cuts the block short.
func (t *Transport) RenderActive(dst []float64, frames int) bool {
	out := dst[:frames*max(t.channels, 1)]

	step := math.Float64frombits(t.step.Load())
	if step <= 0 || t.src == nil || t.src.Frames() == 0 {
		clear(out)
		return false
	}

	src := t.src
	length := src.Frames()
	srcCh := src.Channels()
	outCh := t.channels
	pos := math.Float64frombits(t.cursor.Load())

	for i := range frames {
		base := int(pos)
		frac := float32(pos - float64(base))
		i0 := wrap(base-1, length)
		i1 := base
		i2 := wrap(base+1, length)
		i3 := wrap(base+2, length)

		frame := out[i*outCh : (i+1)*outCh]
		if outCh == 1 && srcCh > 1 {
			var sum float32
			for c := range srcCh {
				sum += cubicInterpolate(src.Sample(i0, c), src.Sample(i1, c), src.Sample(i2, c), src.Sample(i3, c), frac)
			}
			frame[0] = float64(sum / float32(srcCh))
		} else {
			for c := range outCh {
				sc := c % srcCh
				frame[c] = float64(cubicInterpolate(src.Sample(i0, sc), src.Sample(i1, sc), src.Sample(i2, sc), src.Sample(i3, sc), frac))
			}
		}

		pos += step
		if pos >= float64(length) {
			pos = math.Mod(pos, float64(length))
		}
	}

	t.cursor.Store(math.Float64bits(pos))
	return true
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// cubicInterpolate is a Catmull-Rom spline through four consecutive samples;
// x in [0, 1] is the fractional position between y1 and y2.
func cubicInterpolate(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1

	return a0*x*x*x + a1*x*x + a2*x + a3
}
