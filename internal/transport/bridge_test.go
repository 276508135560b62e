// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"mixdeck/internal/audio"
	"mixdeck/internal/audiotest"
	"mixdeck/internal/config"
	applog "mixdeck/internal/log"
	"mixdeck/internal/notify"
)

type dispatcherSubscriber struct {
	*notify.Dispatcher
}

func (d dispatcherSubscriber) AddListener(l *notify.Listener)    { d.Add(l) }
func (d dispatcherSubscriber) RemoveListener(l *notify.Listener) { d.Remove(l) }

func TestBridgeForwardsEvents(t *testing.T) {
	d := notify.NewDispatcher()
	mock := &audiotest.MockTransport{}
	b := NewBridge(dispatcherSubscriber{d}, mock)

	d.Post(notify.FileLoaded{TrackID: 1, Path: "a.wav", SampleRate: 44100, Channels: 2})
	d.Post(notify.PlaybackStarted{})
	d.Drain()

	sent := mock.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	first, ok := sent[0].(Message)
	if !ok || first.Type != "file_loaded" {
		t.Errorf("first message = %#v", sent[0])
	}
	if second := sent[1].(Message); second.Type != "playback_started" {
		t.Errorf("second message type = %q", second.Type)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mock.Closed() {
		t.Error("transport not closed with the bridge")
	}
	if d.Len() != 0 {
		t.Errorf("listeners after Close = %d, want 0", d.Len())
	}

	d.Post(notify.PlaybackStopped{})
	d.Drain()
	if len(mock.Sent()) != 2 {
		t.Error("closed bridge still forwards events")
	}
}

func TestCommandHandlerUnknownAction(t *testing.T) {
	h := CommandHandlerFor(&fakeController{})
	if err := h(Command{Action: "rewind"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("rewind = %v, want ErrUnknownCommand", err)
	}
}

func TestCommandHandlerDrivesEngine(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Audio.SampleRate = 8000
	e, err := audio.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	path := audiotest.WriteWAV(t, t.TempDir(), "a.wav", 8000, 1, audiotest.GenerateConstant(800, 1, 1000))
	h := CommandHandlerFor(e)

	for _, cmd := range []Command{
		{Action: "load", TrackID: 3, Path: path},
		{Action: "play"},
		{Action: "bpm", BPM: 90},
		{Action: "key", Key: "Dm"},
	} {
		if err := h(cmd); err != nil {
			t.Fatalf("%s: %v", cmd.Action, err)
		}
	}

	status := StatusOf(e)
	if !status.Playing || status.BPM != 90 || status.Key != "Dm" {
		t.Errorf("status = %+v", status)
	}
	if len(status.Tracks) != 1 || status.Tracks[0].TrackID != 3 || status.Tracks[0].Format != "wav" {
		t.Errorf("tracks = %+v", status.Tracks)
	}

	if err := h(Command{Action: "bpm", BPM: -1}); !errors.Is(err, audio.ErrInvalidParameter) {
		t.Errorf("bpm -1 = %v, want ErrInvalidParameter", err)
	}
	if err := h(Command{Action: "remove", TrackID: 3}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := len(StatusOf(e).Tracks); n != 0 {
		t.Errorf("tracks after remove = %d", n)
	}
}

func TestLoggingTransportLogsEvents(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	defer applog.SetOutput(os.Stderr)

	d := notify.NewDispatcher()
	lt := NewLoggingTransport()
	b := NewBridge(dispatcherSubscriber{d}, lt)
	defer b.Close()

	d.Post(notify.BPMChanged{BPM: 140})
	d.Drain()

	if lt.Sent() != 1 {
		t.Errorf("Sent = %d, want 1", lt.Sent())
	}
	if out := buf.String(); !strings.Contains(out, "Event bpm_changed") || !strings.Contains(out, "140") {
		t.Errorf("log output = %q", out)
	}
}
