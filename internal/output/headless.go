// SPDX-License-Identifier: MIT
package output

import (
	"sync"
	"sync/atomic"
	"time"

	"mixdeck/internal/config"
	applog "mixdeck/internal/log"
)

// Headless renders blocks on a ticker and discards them. It keeps the
// engine's clock running without a sound card.
type Headless struct {
	cfg      config.AudioConfig
	renderer Renderer
	buffer   []float32

	frames atomic.Int64 // total frames rendered

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewHeadless(cfg config.AudioConfig, r Renderer) *Headless {
	return &Headless{
		cfg:      cfg,
		renderer: r,
		buffer:   make([]float32, cfg.FramesPerBuffer*r.Channels()),
	}
}

func (h *Headless) Name() string { return config.BackendHeadless }

// Period is the time between two rendered blocks.
func (h *Headless) Period() time.Duration {
	if h.cfg.HeadlessTick > 0 {
		return h.cfg.HeadlessTick
	}
	return time.Duration(float64(h.cfg.FramesPerBuffer) / h.cfg.SampleRate * float64(time.Second))
}

// Frames reports how many frames have been rendered since creation.
func (h *Headless) Frames() int64 { return h.frames.Load() }

func (h *Headless) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop != nil {
		return nil
	}
	if err := h.renderer.PrepareToPlay(h.cfg.FramesPerBuffer, h.cfg.SampleRate); err != nil {
		return err
	}

	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.run(h.stop, h.done)

	applog.Infof("Output: headless, %.0f Hz, %d frames every %s", h.cfg.SampleRate, h.cfg.FramesPerBuffer, h.Period())
	return nil
}

func (h *Headless) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop == nil {
		return nil
	}
	close(h.stop)
	<-h.done
	h.stop, h.done = nil, nil
	h.renderer.ReleaseResources()
	return nil
}

func (h *Headless) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.Period())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.renderer.RenderBlock(h.buffer, h.cfg.FramesPerBuffer)
			h.frames.Add(int64(h.cfg.FramesPerBuffer))
		}
	}
}
