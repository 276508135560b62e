// SPDX-License-Identifier: MIT
/*
Package output drives an engine's real-time render callback from an audio
device.

Three backends share one contract:
- portaudio: callback stream on a PortAudio output device
- oto: pull-model player fed through io.Reader
- headless: ticker goroutine that renders and discards, for servers and tests

Each backend calls PrepareToPlay before it starts pulling blocks and
ReleaseResources after it has stopped, so the renderer never sees a render
call overlap a format change.
*/
package output

import (
	"fmt"

	"mixdeck/internal/config"
)

// Renderer is the real-time surface of the playback engine.
type Renderer interface {
	PrepareToPlay(blockSize int, sampleRate float64) error
	RenderBlock(out []float32, frames int)
	ReleaseResources()
	Channels() int
}

// Backend is a running output device.
type Backend interface {
	Name() string
	Start() error
	Stop() error
}

// New selects the backend named by cfg.Audio.Backend.
func New(cfg *config.Config, r Renderer) (Backend, error) {
	switch cfg.Audio.Backend {
	case config.BackendPortAudio:
		return NewPortAudio(cfg.Audio, r), nil
	case config.BackendOto:
		return NewOto(cfg.Audio, r), nil
	case config.BackendHeadless:
		return NewHeadless(cfg.Audio, r), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}
}
