// SPDX-License-Identifier: MIT
package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"mixdeck/internal/config"
	applog "mixdeck/internal/log"
)

// Oto plays the renderer through an oto player. oto pulls little-endian
// float32 bytes from a reader; pcmReader produces them from RenderBlock.
type Oto struct {
	cfg    config.AudioConfig
	reader *pcmReader

	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	started bool
}

func NewOto(cfg config.AudioConfig, r Renderer) *Oto {
	return &Oto{cfg: cfg, reader: newPCMReader(r, cfg.FramesPerBuffer)}
}

func (o *Oto) Name() string { return config.BackendOto }

// Start creates the oto context on first use and starts the player. oto
// allows a single context per process, so Stop keeps it for reuse.
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return nil
	}

	channels := o.reader.channels
	if o.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   int(o.cfg.SampleRate),
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(float64(o.cfg.FramesPerBuffer) / o.cfg.SampleRate * float64(time.Second)),
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("create oto context: %w", err)
		}
		<-ready
		o.ctx = ctx
	}

	if err := o.reader.renderer.PrepareToPlay(o.cfg.FramesPerBuffer, o.cfg.SampleRate); err != nil {
		return err
	}

	o.player = o.ctx.NewPlayer(o.reader)
	o.player.Play()
	o.started = true

	applog.Infof("Output: oto, %.0f Hz, %d frames, %d channels", o.cfg.SampleRate, o.cfg.FramesPerBuffer, channels)
	return nil
}

func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return nil
	}

	o.player.Pause()
	err := o.player.Close()
	o.player = nil
	o.started = false
	o.reader.renderer.ReleaseResources()
	return err
}

// pcmReader adapts a Renderer to io.Reader producing interleaved float32LE.
type pcmReader struct {
	renderer Renderer
	channels int
	samples  []float32 // Pre-allocated sample buffer
}

func newPCMReader(r Renderer, framesPerBuffer int) *pcmReader {
	channels := r.Channels()
	return &pcmReader{
		renderer: r,
		channels: channels,
		samples:  make([]float32, framesPerBuffer*channels),
	}
}

// Read fills p with whole frames. A short p that cannot hold a frame is
// zero-filled.
func (p *pcmReader) Read(b []byte) (int, error) {
	frameBytes := 4 * p.channels
	frames := len(b) / frameBytes
	if frames == 0 {
		clear(b)
		return len(b), nil
	}

	// oto normally asks for the same size every time; grow once if not.
	if need := frames * p.channels; len(p.samples) < need {
		p.samples = make([]float32, need)
	}
	samples := p.samples[:frames*p.channels]

	p.renderer.RenderBlock(samples, frames)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}

	n := frames * frameBytes
	clear(b[n:])
	return len(b), nil
}
