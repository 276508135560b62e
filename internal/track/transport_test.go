// SPDX-License-Identifier: MIT
package track

import (
	"math"
	"testing"

	"mixdeck/internal/decode"
)

const testRate = 1000

// rampSource returns a mono source whose frame i holds i/frames.
func rampSource(t *testing.T, rate, frames int) *decode.Source {
	t.Helper()
	data := make([]float32, frames)
	for i := range data {
		data[i] = float32(i) / float32(frames)
	}
	src, err := decode.NewSource("test", rate, 1, data)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	return src
}

func newPrepared(t *testing.T, src *decode.Source, channels int) *Transport {
	t.Helper()
	tr := New(1, src)
	tr.Prepare(testRate, channels)
	return tr
}

func TestStartStopIdempotent(t *testing.T) {
	tr := newPrepared(t, rampSource(t, testRate, 100), 1)

	if tr.State() != Stopped {
		t.Fatalf("new transport state = %v, want stopped", tr.State())
	}
	tr.Start()
	tr.Start()
	if tr.State() != Playing {
		t.Errorf("after Start twice state = %v, want playing", tr.State())
	}
	tr.Stop()
	tr.Stop()
	if tr.State() != Stopped {
		t.Errorf("after Stop twice state = %v, want stopped", tr.State())
	}
}

func TestRenderStoppedIsSilentAndFrozen(t *testing.T) {
	tr := newPrepared(t, rampSource(t, testRate, 100), 1)
	dst := make([]float64, 16)
	for i := range dst {
		dst[i] = 9
	}

	if tr.Render(dst, 16) {
		t.Error("stopped transport reported a contribution")
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v, want silence", i, v)
		}
	}
	if tr.Position() != 0 {
		t.Errorf("stopped transport advanced to %v", tr.Position())
	}
}

func TestRenderReadsSourceAtNativeRate(t *testing.T) {
	tr := newPrepared(t, rampSource(t, testRate, 100), 1)
	tr.Start()

	dst := make([]float64, 10)
	if !tr.Render(dst, 10) {
		t.Fatal("playing transport reported no contribution")
	}
	for i, v := range dst {
		want := float64(float32(i) / 100)
		if math.Abs(v-want) > 1e-6 {
			t.Errorf("dst[%d] = %v, want %v", i, v, want)
		}
	}
	if got := tr.Position(); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("Position() = %v, want 0.01", got)
	}
}

func TestLoopingLaw(t *testing.T) {
	tr := newPrepared(t, rampSource(t, testRate, 250), 1)
	tr.Start()

	dst := make([]float64, 32)
	prev := tr.PositionRelative()
	wraps := 0
	for range 40 {
		tr.Render(dst, 32)
		rel := tr.PositionRelative()
		if rel < 0 || rel >= 1 {
			t.Fatalf("PositionRelative() = %v, outside [0, 1)", rel)
		}
		if rel < prev {
			wraps++
		}
		prev = rel
	}

	// 40 blocks of 32 frames over a 250-frame loop is 5.12 traversals.
	if wraps != 5 {
		t.Errorf("observed %d wraps, want 5", wraps)
	}
	if want := float64(1280%250) / 250; math.Abs(prev-want) > 1e-9 {
		t.Errorf("final PositionRelative() = %v, want %v", prev, want)
	}
}

func TestRenderWrapsSamplesAcrossLoopPoint(t *testing.T) {
	src, err := decode.NewSource("test", testRate, 1, []float32{0.1, 0.2, 0.3})
	if err != nil {
		t.Fatal(err)
	}
	tr := newPrepared(t, src, 1)
	tr.Start()

	dst := make([]float64, 7)
	tr.Render(dst, 7)
	want := []float32{0.1, 0.2, 0.3, 0.1, 0.2, 0.3, 0.1}
	for i := range want {
		if math.Abs(dst[i]-float64(want[i])) > 1e-6 {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestRenderResamplesByStep(t *testing.T) {
	// A 2 kHz source played into a 1 kHz output advances two source frames
	// per output frame.
	tr := New(1, rampSource(t, 2*testRate, 400))
	tr.Prepare(testRate, 1)
	tr.Start()

	dst := make([]float64, 50)
	tr.Render(dst, 50)

	if got := tr.Position(); math.Abs(got-0.05) > 1e-12 {
		t.Errorf("Position() = %v s, want 0.05", got)
	}
	if math.Abs(dst[3]-float64(float32(6)/400)) > 1e-6 {
		t.Errorf("dst[3] = %v, want source frame 6", dst[3])
	}
}

func TestRenderChannelMapping(t *testing.T) {
	t.Run("mono fans out", func(t *testing.T) {
		src, _ := decode.NewSource("test", testRate, 1, []float32{0.5, 0.5, 0.5, 0.5})
		tr := newPrepared(t, src, 2)
		tr.Start()

		dst := make([]float64, 4)
		tr.Render(dst, 2)
		for i, v := range dst {
			if v != 0.5 {
				t.Errorf("dst[%d] = %v, want 0.5", i, v)
			}
		}
	})

	t.Run("stereo folds to mono", func(t *testing.T) {
		src, _ := decode.NewSource("test", testRate, 2, []float32{0.2, 0.6, 0.2, 0.6, 0.2, 0.6, 0.2, 0.6})
		tr := newPrepared(t, src, 1)
		tr.Start()

		dst := make([]float64, 2)
		tr.Render(dst, 2)
		for i, v := range dst {
			if math.Abs(v-0.4) > 1e-6 {
				t.Errorf("dst[%d] = %v, want 0.4", i, v)
			}
		}
	})
}

func TestZeroLengthSource(t *testing.T) {
	src, err := decode.NewSource("test", testRate, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	tr := newPrepared(t, src, 2)
	tr.Start()

	dst := []float64{1, 1, 1, 1}
	if tr.Render(dst, 2) {
		t.Error("zero-length source reported a contribution")
	}
	if dst[0] != 0 || dst[3] != 0 {
		t.Errorf("dst = %v, want silence", dst)
	}
	if tr.PositionRelative() != 0 {
		t.Errorf("PositionRelative() = %v, want 0", tr.PositionRelative())
	}
}

func TestReleasedTransportIsSilent(t *testing.T) {
	tr := newPrepared(t, rampSource(t, testRate, 100), 1)
	tr.Start()
	tr.Release()

	if tr.IsPlaying() || !tr.Released() {
		t.Fatal("Release did not stop the transport")
	}
	tr.Start()
	dst := make([]float64, 8)
	if tr.Render(dst, 8) {
		t.Error("released transport reported a contribution")
	}
}

func TestActiveFollowsStopAndRelease(t *testing.T) {
	tr := newPrepared(t, rampSource(t, testRate, 100), 1)
	if tr.Active() {
		t.Error("stopped transport is active")
	}
	tr.Start()
	if !tr.Active() {
		t.Error("started transport is not active")
	}
	tr.Stop()
	if tr.Active() {
		t.Error("Active() = true after Stop")
	}
	tr.Start()
	tr.Release()
	if tr.Active() {
		t.Error("Active() = true after Release")
	}
}

func TestRenderActiveIgnoresStopForCurrentBlock(t *testing.T) {
	tr := newPrepared(t, rampSource(t, testRate, 100), 1)
	tr.Start()
	dst := make([]float64, 10)
	tr.RenderActive(dst, 10)

	tr.Stop()
	if !tr.RenderActive(dst, 10) {
		t.Fatal("RenderActive after Stop reported no contribution")
	}
	for i, v := range dst {
		want := float64(10+i) / 100
		if math.Abs(v-want) > 1e-6 {
			t.Errorf("dst[%d] = %v, want %v", i, v, want)
		}
	}
	if got := tr.Position(); math.Abs(got-0.02) > 1e-12 {
		t.Errorf("Position() = %v, want 0.02", got)
	}
}

func TestRenderNoAllocs(t *testing.T) {
	tr := newPrepared(t, rampSource(t, 44100, 44100), 2)
	tr.Prepare(48000, 2)
	tr.Start()
	dst := make([]float64, 512*2)

	allocs := testing.AllocsPerRun(100, func() {
		tr.Render(dst, 512)
	})
	if allocs > 0 {
		t.Errorf("Render allocated: got %.1f allocs, want 0", allocs)
	}
}

func TestCubicInterpolateEndpoints(t *testing.T) {
	if got := cubicInterpolate(0.1, 0.2, 0.3, 0.4, 0); got != 0.2 {
		t.Errorf("x=0: got %v, want y1", got)
	}
	if got := cubicInterpolate(0.1, 0.2, 0.3, 0.4, 1); math.Abs(float64(got-0.3)) > 1e-6 {
		t.Errorf("x=1: got %v, want y2", got)
	}
}

func BenchmarkRender(b *testing.B) {
	data := make([]float32, 44100*2)
	src, _ := decode.NewSource("bench", 44100, 2, data)
	tr := New(1, src)
	tr.Prepare(48000, 2)
	tr.Start()
	dst := make([]float64, 512*2)

	b.ReportAllocs()
	for b.Loop() {
		tr.Render(dst, 512)
	}
}
