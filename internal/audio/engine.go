// SPDX-License-Identifier: MIT
/*
Package audio implements the multi-track playback engine:
- Copy-on-write track registry read lock-free by the render callback
- Single background loader for all file I/O and decoding
- Additive float64 mixer with no allocation in the hot path
- Asynchronous notifications delivered off the real-time goroutine

Thread Safety:
- RenderBlock reads only atomics and pre-allocated buffers
- Control-plane methods serialise on the registry writer lock
- PrepareToPlay and ReleaseResources must not overlap RenderBlock
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mixdeck/internal/config"
	"mixdeck/internal/decode"
	"mixdeck/internal/loader"
	applog "mixdeck/internal/log"
	"mixdeck/internal/mixer"
	"mixdeck/internal/notify"
	"mixdeck/internal/registry"
	"mixdeck/internal/track"
)

var (
	ErrFileNotFound               = errors.New("file not found or unreadable")
	ErrUnsupportedOrCorruptFormat = errors.New("unsupported or corrupt audio format")
	ErrTrackNotFound              = errors.New("track not found")
	ErrInvalidParameter           = errors.New("invalid parameter")
)

// TrackInfo describes one registered track for controlling UIs.
type TrackInfo struct {
	ID         int
	Path       string
	Format     string
	SampleRate int
	Channels   int
	Duration   time.Duration
	Position   float64 // relative, [0, 1)
	Playing    bool
}

type Engine struct {
	// Core configuration and state.
	config *config.Config

	codecs *decode.Registry
	tracks *registry.Registry
	mixer  *mixer.Mixer
	loader *loader.Loader
	events *notify.Dispatcher

	// Output format new transports are prepared for. formatMu orders
	// transport preparation against PrepareToPlay; the render path never
	// takes it.
	formatMu   sync.Mutex
	sampleRate float64
	channels   int
	prepared   atomic.Bool

	metaMu sync.Mutex
	bpm    int
	key    string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewEngine builds an engine with every built-in decoder. Output format
// defaults come from cfg.Audio until PrepareToPlay is called.
func NewEngine(cfg *config.Config) (*Engine, error) {
	return NewEngineWithCodecs(cfg, decode.DefaultRegistry())
}

// NewEngineWithCodecs is NewEngine with a caller supplied decoder registry.
func NewEngineWithCodecs(cfg *config.Config, codecs *decode.Registry) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if cfg.Engine.BPM <= 0 {
		return nil, fmt.Errorf("%w: bpm %d", ErrInvalidParameter, cfg.Engine.BPM)
	}
	if cfg.Engine.Key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidParameter)
	}
	if cfg.Audio.OutputChannels <= 0 || cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: output format %.0f Hz x %d", ErrInvalidParameter,
			cfg.Audio.SampleRate, cfg.Audio.OutputChannels)
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		config:     cfg,
		codecs:     codecs,
		tracks:     registry.New(),
		mixer:      mixer.New(),
		loader:     loader.New(codecs, cfg.Engine.LoaderQueue),
		events:     notify.NewDispatcher(),
		sampleRate: cfg.Audio.SampleRate,
		channels:   cfg.Audio.OutputChannels,
		bpm:        cfg.Engine.BPM,
		key:        cfg.Engine.Key,
		ctx:        ctx,
		cancel:     cancel,
	}

	return engine, nil
}

// Codecs exposes the decoder registry, e.g. for probing files.
func (e *Engine) Codecs() *decode.Registry { return e.codecs }

// Channels is the interleaved channel count RenderBlock writes.
func (e *Engine) Channels() int { return e.channels }

// SampleRate is the output rate transports are prepared for.
func (e *Engine) SampleRate() float64 {
	e.formatMu.Lock()
	defer e.formatMu.Unlock()
	return e.sampleRate
}

// LoadFile decodes path on the loader goroutine and installs it as track
// id, replacing any earlier transport for that id. The caller waits for the
// outcome; the render path never does.
func (e *Engine) LoadFile(path string, id int) error {
	return <-e.LoadFileAsync(path, id)
}

// LoadFileAsync is LoadFile without waiting. The returned channel receives
// exactly one value.
func (e *Engine) LoadFileAsync(path string, id int) <-chan error {
	result := make(chan error, 1)

	if id <= 0 {
		result <- fmt.Errorf("%w: track id %d", ErrInvalidParameter, id)
		return result
	}

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		err = fmt.Errorf("%s is a directory", path)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFileNotFound, err)
		e.loadFailed(id, path, err)
		result <- err
		return result
	}

	if err := e.loader.Submit(id, path, func(res loader.Result) {
		result <- e.install(res)
	}); err != nil {
		result <- fmt.Errorf("load %s: %w", path, err)
	}
	return result
}

// install runs on the loader goroutine once a decode has finished.
func (e *Engine) install(res loader.Result) error {
	if res.Err != nil {
		err := classifyLoadError(res.Err)
		if errors.Is(res.Err, loader.ErrSuperseded) {
			applog.Debugf("Engine: load of %s for track %d superseded", res.Path, res.TrackID)
			return err
		}
		e.loadFailed(res.TrackID, res.Path, err)
		return err
	}

	t := track.New(res.TrackID, res.Source)

	e.formatMu.Lock()
	t.Prepare(e.sampleRate, e.channels)
	old := e.tracks.Put(t)
	e.formatMu.Unlock()

	if old != nil {
		applog.Debugf("Engine: replaced track %d (%s)", res.TrackID, old.Source().Path())
	}
	applog.Infof("Engine: loaded %s as track %d (%s, %d Hz, %d ch, %s)",
		res.Path, res.TrackID, res.Source.Format(), res.Source.SampleRate(),
		res.Source.Channels(), res.Source.Duration().Round(time.Millisecond))

	e.events.Post(notify.FileLoaded{
		TrackID:    res.TrackID,
		Path:       res.Path,
		SampleRate: res.Source.SampleRate(),
		Channels:   res.Source.Channels(),
	})
	return nil
}

func (e *Engine) loadFailed(id int, path string, err error) {
	applog.Warnf("Engine: failed to load %s as track %d: %v", path, id, err)
	e.events.Post(notify.LoadFailed{TrackID: id, Path: path, Reason: err.Error()})
}

// classifyLoadError maps loader and decoder failures onto the engine's
// sentinels while keeping the cause in the chain.
func classifyLoadError(err error) error {
	switch {
	case errors.Is(err, loader.ErrSuperseded), errors.Is(err, loader.ErrLoaderClosed):
		return err
	case errors.Is(err, decode.ErrUnsupportedFormat), errors.Is(err, decode.ErrCorruptFile):
		return fmt.Errorf("%w: %w", ErrUnsupportedOrCorruptFormat, err)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrFileNotFound, err)
	default:
		// Open and read failures that are neither: treat as unreadable.
		return fmt.Errorf("%w: %w", ErrFileNotFound, err)
	}
}

// RemoveTrack unregisters id. Absent ids are ignored.
func (e *Engine) RemoveTrack(id int) {
	if old := e.tracks.Remove(id); old != nil {
		applog.Debugf("Engine: removed track %d", id)
		e.events.Post(notify.TrackRemoved{TrackID: id})
	}
}

// Play starts every registered track. Idempotent.
func (e *Engine) Play() {
	if e.tracks.SetPlaying(true) {
		applog.Debugf("Engine: playback started")
		e.events.Post(notify.PlaybackStarted{})
	}
}

// Stop stops every registered track. Idempotent.
func (e *Engine) Stop() {
	if e.tracks.SetPlaying(false) {
		applog.Debugf("Engine: playback stopped")
		e.events.Post(notify.PlaybackStopped{})
	}
}

func (e *Engine) IsPlaying() bool { return e.tracks.Playing() }

// PositionRelative is the looping position of track id in [0, 1), or 0
// when the track is absent or empty.
func (e *Engine) PositionRelative(id int) float64 {
	t, ok := e.tracks.Load().Get(id)
	if !ok {
		return 0
	}
	return t.PositionRelative()
}

func (e *Engine) BPM() int {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.bpm
}

// SetBPM stores a positive tempo and broadcasts it when it changed.
func (e *Engine) SetBPM(bpm int) error {
	if bpm <= 0 {
		return fmt.Errorf("%w: bpm %d must be positive", ErrInvalidParameter, bpm)
	}

	e.metaMu.Lock()
	changed := e.bpm != bpm
	e.bpm = bpm
	e.metaMu.Unlock()

	if changed {
		e.events.Post(notify.BPMChanged{BPM: bpm})
	}
	return nil
}

func (e *Engine) Key() string {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.key
}

// SetKey stores a non-empty key and broadcasts it when it changed.
func (e *Engine) SetKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidParameter)
	}

	e.metaMu.Lock()
	changed := e.key != key
	e.key = key
	e.metaMu.Unlock()

	if changed {
		e.events.Post(notify.KeyChanged{Key: key})
	}
	return nil
}

// Tracks lists the registered tracks in id order.
func (e *Engine) Tracks() []TrackInfo {
	snap := e.tracks.Load()
	infos := make([]TrackInfo, 0, snap.Len())
	for _, t := range snap.Tracks() {
		infos = append(infos, trackInfo(t))
	}
	return infos
}

// TrackInfo describes a single track.
func (e *Engine) TrackInfo(id int) (TrackInfo, error) {
	t, ok := e.tracks.Load().Get(id)
	if !ok {
		return TrackInfo{}, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	return trackInfo(t), nil
}

func trackInfo(t *track.Transport) TrackInfo {
	src := t.Source()
	return TrackInfo{
		ID:         t.ID(),
		Path:       src.Path(),
		Format:     src.Format(),
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
		Duration:   src.Duration(),
		Position:   t.PositionRelative(),
		Playing:    t.IsPlaying(),
	}
}

func (e *Engine) AddListener(l *notify.Listener)    { e.events.Add(l) }
func (e *Engine) RemoveListener(l *notify.Listener) { e.events.Remove(l) }

// Run delivers notifications on the calling goroutine until ctx is done or
// the engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	err := e.events.Run(ctx)
	if e.ctx.Err() != nil {
		return nil
	}
	return err
}

// DrainEvents delivers queued notifications synchronously. Intended for
// callers without a Run loop, such as tests. Called from a listener it
// returns 0 and the delivery already running finishes the queue.
func (e *Engine) DrainEvents() int { return e.events.Drain() }

// PrepareToPlay fixes the block size and sample rate of the output device
// and re-prepares every registered track. Must not overlap RenderBlock.
func (e *Engine) PrepareToPlay(blockSize int, sampleRate float64) error {
	if blockSize <= 0 || sampleRate <= 0 {
		return fmt.Errorf("%w: block size %d at %.0f Hz", ErrInvalidParameter, blockSize, sampleRate)
	}

	e.formatMu.Lock()
	defer e.formatMu.Unlock()

	e.prepared.Store(false)
	e.sampleRate = sampleRate
	e.mixer.Prepare(blockSize, e.channels)
	for _, t := range e.tracks.Load().Tracks() {
		t.Prepare(sampleRate, e.channels)
	}
	e.prepared.Store(true)

	applog.Debugf("Engine: prepared for %d frames at %.0f Hz, %d channels", blockSize, sampleRate, e.channels)
	return nil
}

// RenderBlock writes frames interleaved frames into out. It is the
// real-time entry point.
// Performance Critical (Hot Path):
// - No allocations, no I/O, no blocking locks
// - Never posts notifications
// - Any failure degrades to silence
func (e *Engine) RenderBlock(out []float32, frames int) {
	n := min(frames*e.channels, len(out))
	if n <= 0 {
		return
	}
	out = out[:n]

	if !e.prepared.Load() || !e.tracks.Playing() {
		clear(out)
		return
	}
	e.mixer.Mix(e.tracks.Load().Tracks(), out, n/e.channels)
	clear(out[n-n%e.channels:])
}

// ReleaseResources frees the render buffers. RenderBlock outputs silence
// until the next PrepareToPlay.
func (e *Engine) ReleaseResources() {
	e.formatMu.Lock()
	defer e.formatMu.Unlock()

	e.prepared.Store(false)
	e.mixer.Release()
}

// Close stops the loader, drops every track and ends Run. Idempotent.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.loader.Close()
		e.tracks.Clear()
		e.cancel()
		e.events.Drain()
	})
	return err
}
