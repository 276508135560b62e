// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"sync"

	"mixdeck/internal/audio"
	applog "mixdeck/internal/log"
	"mixdeck/internal/notify"
)

// Subscriber is the listener registration half of the engine.
type Subscriber interface {
	AddListener(*notify.Listener)
	RemoveListener(*notify.Listener)
}

// Bridge forwards every engine notification to its transports.
type Bridge struct {
	source     Subscriber
	listener   *notify.Listener
	transports []Transport

	closeOnce sync.Once
}

// NewBridge subscribes to source. The bridge owns the transports and closes
// them on Close.
func NewBridge(source Subscriber, transports ...Transport) *Bridge {
	b := &Bridge{source: source, transports: transports}
	b.listener = notify.NewListener(b.forward)
	source.AddListener(b.listener)
	return b
}

func (b *Bridge) forward(e notify.Event) {
	msg := NewMessage(e)
	for _, t := range b.transports {
		if err := t.Send(msg); err != nil {
			applog.Warnf("Bridge: send %s via %T: %v", msg.Type, t, err)
		}
	}
}

// Close unsubscribes and closes every transport.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		b.source.RemoveListener(b.listener)
		for _, t := range b.transports {
			if err := t.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Controller is the control plane a remote client may drive.
type Controller interface {
	LoadFile(path string, id int) error
	RemoveTrack(id int)
	Play()
	Stop()
	SetBPM(bpm int) error
	SetKey(key string) error
}

var ErrUnknownCommand = errors.New("unknown command")

// CommandHandlerFor maps remote commands onto c.
func CommandHandlerFor(c Controller) CommandHandler {
	return func(cmd Command) error {
		applog.Debugf("Remote: %+v", cmd)
		switch cmd.Action {
		case "play":
			c.Play()
		case "stop":
			c.Stop()
		case "load":
			return c.LoadFile(cmd.Path, cmd.TrackID)
		case "remove":
			c.RemoveTrack(cmd.TrackID)
		case "bpm":
			return c.SetBPM(cmd.BPM)
		case "key":
			return c.SetKey(cmd.Key)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
		}
		return nil
	}
}

// Status is sent to each client when it connects.
type Status struct {
	Type    string        `json:"type"` // always "status"
	Playing bool          `json:"playing"`
	BPM     int           `json:"bpm"`
	Key     string        `json:"key"`
	Tracks  []TrackStatus `json:"tracks"`
}

type TrackStatus struct {
	TrackID    int     `json:"track_id"`
	Path       string  `json:"path"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Seconds    float64 `json:"seconds"`
	Position   float64 `json:"position"`
}

// StatusOf captures the engine's current state.
func StatusOf(e *audio.Engine) Status {
	tracks := e.Tracks()
	s := Status{
		Type:    "status",
		Playing: e.IsPlaying(),
		BPM:     e.BPM(),
		Key:     e.Key(),
		Tracks:  make([]TrackStatus, len(tracks)),
	}
	for i, t := range tracks {
		s.Tracks[i] = TrackStatus{
			TrackID:    t.ID,
			Path:       t.Path,
			Format:     t.Format,
			SampleRate: t.SampleRate,
			Channels:   t.Channels,
			Seconds:    t.Duration.Seconds(),
			Position:   t.Position,
		}
	}
	return s
}
