// SPDX-License-Identifier: MIT
package loader

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"mixdeck/internal/audiotest"
	"mixdeck/internal/decode"
)

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for loader result")
		return Result{}
	}
}

func TestSubmitDecodes(t *testing.T) {
	dir := t.TempDir()
	path := audiotest.WriteWAV(t, dir, "a.wav", 8000, 1, audiotest.GenerateConstant(80, 1, 100))

	l := New(decode.DefaultRegistry(), 4)
	defer l.Close()

	got := make(chan Result, 1)
	if err := l.Submit(3, path, func(r Result) { got <- r }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	r := waitResult(t, got)
	if r.Err != nil {
		t.Fatalf("result error: %v", r.Err)
	}
	if r.TrackID != 3 || r.Path != path {
		t.Errorf("result for track %d path %q", r.TrackID, r.Path)
	}
	if r.Source == nil || r.Source.Frames() != 80 {
		t.Errorf("source = %+v", r.Source)
	}
}

func TestSubmitReportsDecodeFailure(t *testing.T) {
	dir := t.TempDir()
	path := audiotest.WriteFile(t, dir, "bad.wav", []byte("not really a wav"))

	l := New(decode.DefaultRegistry(), 1)
	defer l.Close()

	got := make(chan Result, 1)
	_ = l.Submit(1, path, func(r Result) { got <- r })

	r := waitResult(t, got)
	if !errors.Is(r.Err, decode.ErrCorruptFile) {
		t.Errorf("err = %v, want ErrCorruptFile", r.Err)
	}
	if r.Source != nil {
		t.Error("failed result carries a source")
	}
}

func TestNewerRequestSupersedesQueuedOne(t *testing.T) {
	codecs := decode.NewRegistry()
	release := make(chan struct{})
	codecs.Register("slow", decode.DecoderFunc(func(io.ReadSeeker) (*decode.Source, error) {
		<-release
		return decode.NewSource("slow", 100, 1, []float32{0})
	}), ".slow")
	codecs.Register("wav", decode.WAV{}, ".wav")

	dir := t.TempDir()
	blocker := audiotest.WriteFile(t, dir, "block.slow", []byte{0})
	first := audiotest.WriteWAV(t, dir, "first.wav", 8000, 1, audiotest.GenerateConstant(8, 1, 0))
	second := audiotest.WriteWAV(t, dir, "second.wav", 8000, 1, audiotest.GenerateConstant(8, 1, 0))

	l := New(codecs, 4)
	defer l.Close()

	var mu sync.Mutex
	var order []Result
	all := make(chan struct{}, 3)
	record := func(r Result) {
		mu.Lock()
		order = append(order, r)
		mu.Unlock()
		all <- struct{}{}
	}

	_ = l.Submit(9, blocker, record)
	_ = l.Submit(1, first, record)
	_ = l.Submit(1, second, record)
	close(release)

	for range 3 {
		select {
		case <-all:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if order[1].Path != first || !errors.Is(order[1].Err, ErrSuperseded) {
		t.Errorf("first request: path %q err %v, want superseded", order[1].Path, order[1].Err)
	}
	if order[2].Path != second || order[2].Err != nil {
		t.Errorf("second request: path %q err %v, want success", order[2].Path, order[2].Err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	l := New(decode.DefaultRegistry(), 1)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := l.Submit(1, "x.wav", nil); !errors.Is(err, ErrLoaderClosed) {
		t.Errorf("Submit after Close = %v, want ErrLoaderClosed", err)
	}
}
