// SPDX-License-Identifier: MIT
package mixer

import (
	"math"
	"testing"

	"mixdeck/internal/decode"
	"mixdeck/internal/track"
)

func constantTrack(t testing.TB, id int, value float32, frames int) *track.Transport {
	t.Helper()
	data := make([]float32, frames)
	for i := range data {
		data[i] = value
	}
	src, err := decode.NewSource("test", 1000, 1, data)
	if err != nil {
		t.Fatal(err)
	}
	tr := track.New(id, src)
	tr.Prepare(1000, 2)
	tr.Start()
	return tr
}

func TestMixSumsTracks(t *testing.T) {
	m := New()
	m.Prepare(64, 2)

	tracks := []*track.Transport{
		constantTrack(t, 1, 0.25, 100),
		constantTrack(t, 2, 0.5, 100),
	}
	out := make([]float32, 64*2)
	m.Mix(tracks, out, 64)

	for i, v := range out {
		if math.Abs(float64(v)-0.75) > 1e-6 {
			t.Fatalf("out[%d] = %v, want 0.75", i, v)
		}
	}
}

func TestMixDoesNotClip(t *testing.T) {
	m := New()
	m.Prepare(16, 2)

	tracks := []*track.Transport{
		constantTrack(t, 1, 0.8, 100),
		constantTrack(t, 2, 0.8, 100),
	}
	out := make([]float32, 32)
	m.Mix(tracks, out, 16)

	if math.Abs(float64(out[0])-1.6) > 1e-6 {
		t.Errorf("out[0] = %v, want 1.6 (unclipped)", out[0])
	}
}

func TestMixSilence(t *testing.T) {
	tests := []struct {
		name    string
		prepare bool
		tracks  []*track.Transport
	}{
		{"no tracks", true, nil},
		{"stopped track", true, func() []*track.Transport {
			tr := constantTrack(t, 1, 0.5, 100)
			tr.Stop()
			return []*track.Transport{tr}
		}()},
		{"unprepared mixer", false, []*track.Transport{constantTrack(t, 1, 0.5, 100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			if tt.prepare {
				m.Prepare(32, 2)
			}
			if m.Prepared() != tt.prepare {
				t.Fatalf("Prepared() = %v, want %v", m.Prepared(), tt.prepare)
			}
			out := make([]float32, 64)
			for i := range out {
				out[i] = 1
			}
			m.Mix(tt.tracks, out, 32)
			for i, v := range out {
				if v != 0 {
					t.Fatalf("out[%d] = %v, want silence", i, v)
				}
			}
		})
	}
}

func TestMixChunksLongBlocks(t *testing.T) {
	m := New()
	m.Prepare(10, 2)

	tr := constantTrack(t, 1, 0.5, 1000)
	out := make([]float32, 35*2)
	m.Mix([]*track.Transport{tr}, out, 35)

	for i, v := range out {
		if v != 0.5 {
			t.Fatalf("out[%d] = %v, want 0.5", i, v)
		}
	}
	if got := tr.Position(); math.Abs(got-0.035) > 1e-12 {
		t.Errorf("track advanced to %v s, want 0.035", got)
	}
}

func TestMixNoAllocs(t *testing.T) {
	m := New()
	m.Prepare(512, 2)
	tracks := []*track.Transport{
		constantTrack(t, 1, 0.1, 4096),
		constantTrack(t, 2, 0.2, 4096),
		constantTrack(t, 3, 0.3, 4096),
	}
	out := make([]float32, 512*2)

	allocs := testing.AllocsPerRun(100, func() {
		m.Mix(tracks, out, 512)
	})
	if allocs > 0 {
		t.Errorf("Mix allocated: got %.1f allocs, want 0", allocs)
	}
}

func TestMixLongBlockSumsTracks(t *testing.T) {
	m := New()
	m.Prepare(10, 2)

	tracks := []*track.Transport{
		constantTrack(t, 1, 0.25, 1000),
		constantTrack(t, 2, 0.5, 1000),
		constantTrack(t, 3, 0.125, 1000),
	}
	tracks[2].Stop()

	out := make([]float32, 37*2)
	for i := range out {
		out[i] = 9
	}
	m.Mix(tracks, out, 37)

	for i, v := range out {
		if v != 0.75 {
			t.Fatalf("out[%d] = %v, want 0.75", i, v)
		}
	}
	if got := tracks[2].Position(); got != 0 {
		t.Errorf("stopped track advanced to %v s", got)
	}
}

func TestMixLongBlockNoAllocs(t *testing.T) {
	m := New()
	m.Prepare(64, 2)
	tracks := []*track.Transport{
		constantTrack(t, 1, 0.1, 4096),
		constantTrack(t, 2, 0.2, 4096),
	}
	out := make([]float32, 1000*2)

	allocs := testing.AllocsPerRun(100, func() {
		m.Mix(tracks, out, 1000)
	})
	if allocs > 0 {
		t.Errorf("Mix allocated on a long block: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkMix(b *testing.B) {
	m := New()
	m.Prepare(512, 2)
	tracks := make([]*track.Transport, 8)
	for i := range tracks {
		tracks[i] = constantTrack(b, i+1, 0.1, 44100)
	}
	out := make([]float32, 512*2)

	b.ReportAllocs()
	for b.Loop() {
		m.Mix(tracks, out, 512)
	}
}
