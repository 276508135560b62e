// SPDX-License-Identifier: MIT
/*
Package registry holds the authoritative mapping from track id to live
transport.

Readers never lock. Writers serialise on a short mutex, build a fresh
immutable Snapshot outside of any real-time concern, and publish it with a
single atomic pointer store. A reader therefore always observes either the
complete pre-mutation or the complete post-mutation set of tracks.

The same writer lock guards the engine-wide playing flag, so starting or
stopping playback and inserting a track are totally ordered with respect
to each other.
*/
package registry

import (
	"slices"
	"sync"
	"sync/atomic"

	"mixdeck/internal/track"
)

// Snapshot is an immutable view of the registered tracks. Tracks are kept
// sorted by id so mixing order is deterministic.
type Snapshot struct {
	tracks []*track.Transport
	byID   map[int]*track.Transport
}

var empty = &Snapshot{byID: map[int]*track.Transport{}}

// Tracks returns the transports in id order. Callers must not modify the
// returned slice.
func (s *Snapshot) Tracks() []*track.Transport { return s.tracks }

func (s *Snapshot) Len() int { return len(s.tracks) }

func (s *Snapshot) Get(id int) (*track.Transport, bool) {
	t, ok := s.byID[id]
	return t, ok
}

// IDs returns the registered ids in ascending order.
func (s *Snapshot) IDs() []int {
	ids := make([]int, len(s.tracks))
	for i, t := range s.tracks {
		ids[i] = t.ID()
	}
	return ids
}

// with returns a copy of s where id maps to t, plus the transport it replaced.
func (s *Snapshot) with(id int, t *track.Transport) (*Snapshot, *track.Transport) {
	old := s.byID[id]

	next := &Snapshot{
		tracks: make([]*track.Transport, 0, len(s.tracks)+1),
		byID:   make(map[int]*track.Transport, len(s.byID)+1),
	}
	for _, cur := range s.tracks {
		if cur.ID() != id {
			next.tracks = append(next.tracks, cur)
			next.byID[cur.ID()] = cur
		}
	}
	next.tracks = append(next.tracks, t)
	next.byID[id] = t
	slices.SortFunc(next.tracks, func(a, b *track.Transport) int { return a.ID() - b.ID() })

	return next, old
}

// without returns a copy of s lacking id, plus the transport removed.
func (s *Snapshot) without(id int) (*Snapshot, *track.Transport) {
	old, ok := s.byID[id]
	if !ok {
		return s, nil
	}

	next := &Snapshot{
		tracks: make([]*track.Transport, 0, len(s.tracks)-1),
		byID:   make(map[int]*track.Transport, len(s.byID)-1),
	}
	for _, cur := range s.tracks {
		if cur.ID() != id {
			next.tracks = append(next.tracks, cur)
			next.byID[cur.ID()] = cur
		}
	}
	return next, old
}

type Registry struct {
	mu      sync.Mutex // writers only; never taken on the render path
	current atomic.Pointer[Snapshot]
	playing atomic.Bool
}

func New() *Registry {
	r := &Registry{}
	r.current.Store(empty)
	return r
}

// Load returns the published snapshot. Safe on the real-time path.
func (r *Registry) Load() *Snapshot {
	return r.current.Load()
}

// Playing reports the engine-wide playing flag. Safe on the real-time path.
func (r *Registry) Playing() bool {
	return r.playing.Load()
}

// Put publishes t at its id, replacing and releasing any previous transport
// for that id. The new transport is started if the registry is playing, so
// a track's running state always matches the flag at insertion time.
// Returns the replaced transport, or nil.
func (r *Registry) Put(t *track.Transport) *track.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, old := r.current.Load().with(t.ID(), t)
	if old != nil {
		old.Release()
	}
	if r.playing.Load() {
		t.Start()
	}
	r.current.Store(next)
	return old
}

// Remove unpublishes id, stopping and releasing its transport. Returns the
// removed transport, or nil when id was not registered.
func (r *Registry) Remove(id int) *track.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, old := r.current.Load().without(id)
	if old == nil {
		return nil
	}
	r.current.Store(next)
	old.Release()
	return old
}

// SetPlaying flips the engine-wide flag and starts or stops every
// registered transport. It reports whether the flag changed.
func (r *Registry) SetPlaying(playing bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.playing.Load() == playing {
		return false
	}
	r.playing.Store(playing)
	for _, t := range r.current.Load().Tracks() {
		if playing {
			t.Start()
		} else {
			t.Stop()
		}
	}
	return true
}

// Clear removes and releases every track.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.current.Load().Tracks() {
		t.Release()
	}
	r.current.Store(empty)
}
