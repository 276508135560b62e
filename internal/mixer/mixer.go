// SPDX-License-Identifier: MIT
/*
Package mixer sums track blocks into the output buffer.

The mixer owns no tracks; it mixes whatever transports the caller hands it
for one block. All buffers are allocated by Prepare, so Mix runs on the
real-time goroutine without allocating.

Mixing is a plain sum: nothing is normalised or clipped, and values outside
[-1, 1] reach the output untouched.
*/
package mixer

import (
	"gonum.org/v1/gonum/floats"

	"mixdeck/internal/track"
)

type Mixer struct {
	maxFrames int
	channels  int
	bus       []float64
	scratch   []float64
}

func New() *Mixer { return &Mixer{} }

// Prepare allocates buffers for blocks of up to maxFrames frames.
func (m *Mixer) Prepare(maxFrames, channels int) {
	if maxFrames <= 0 || channels <= 0 {
		m.Release()
		return
	}
	m.maxFrames = maxFrames
	m.channels = channels
	m.bus = make([]float64, maxFrames*channels)
	m.scratch = make([]float64, maxFrames*channels)
}

// Release drops the buffers. An unprepared mixer renders silence.
func (m *Mixer) Release() {
	m.maxFrames = 0
	m.bus = nil
	m.scratch = nil
}

// Prepared reports whether Mix has buffers to render into.
func (m *Mixer) Prepared() bool { return m.maxFrames > 0 }

// Mix writes frames interleaved frames into out: the sum of every track's
// next block. out must hold at least frames times the prepared
// channel count samples.
//
// Whether a track contributes is decided once per call. Requests longer
// than the prepared block size are rendered track by track in chunks, so a
// track stopped or removed mid-call still contributes to the whole block.
func (m *Mixer) Mix(tracks []*track.Transport, out []float32, frames int) {
	if !m.Prepared() {
		clear(out)
		return
	}
	out = out[:frames*m.channels]

	if frames <= m.maxFrames {
		m.mixBlock(tracks, out, frames)
		return
	}

	clear(out)
	for _, t := range tracks {
		if !t.Active() {
			continue
		}
		for done := 0; done < frames; {
			n := min(frames-done, m.maxFrames)
			m.accumulate(t, out[done*m.channels:(done+n)*m.channels], n)
			done += n
		}
	}
}

func (m *Mixer) mixBlock(tracks []*track.Transport, out []float32, frames int) {
	size := frames * m.channels
	bus := m.bus[:size]
	scratch := m.scratch[:size]

	clear(bus)
	for _, t := range tracks {
		if t.Render(scratch, frames) {
			floats.Add(bus, scratch)
		}
	}

	for i, v := range bus {
		out[i] = float32(v)
	}
}

// accumulate adds one chunk of an already active track to out.
func (m *Mixer) accumulate(t *track.Transport, out []float32, frames int) {
	size := frames * m.channels
	bus := m.bus[:size]
	scratch := m.scratch[:size]

	if !t.RenderActive(scratch, frames) {
		return
	}
	for i, v := range out {
		bus[i] = float64(v)
	}
	floats.Add(bus, scratch)
	for i, v := range bus {
		out[i] = float32(v)
	}
}
