// SPDX-License-Identifier: MIT
/*
Package loader runs file decoding on a single background goroutine.

Requests are served strictly in submission order. Each request carries a
per-track generation number; when a newer request for the same track is
submitted before an older one has been decoded, the older one is reported
as superseded instead of being decoded. Because there is one worker,
results for the same track always complete in submission order.
*/
package loader

import (
	"errors"
	"sync"
	"sync/atomic"

	"mixdeck/internal/decode"
	applog "mixdeck/internal/log"
)

var (
	ErrLoaderClosed = errors.New("loader closed")
	ErrSuperseded   = errors.New("load superseded by a newer request")
)

const DefaultQueueSize = 16

// Result is handed to the request's callback on the worker goroutine.
type Result struct {
	TrackID int
	Path    string
	Source  *decode.Source
	Err     error
}

type request struct {
	trackID int
	path    string
	gen     uint64
	done    func(Result)
}

type Loader struct {
	codecs   *decode.Registry
	requests chan *request

	closeMu sync.RWMutex // guards closed and the requests channel
	closed  bool
	closing atomic.Bool

	genMu sync.Mutex
	gens  map[int]uint64

	wg sync.WaitGroup
}

// New starts the worker. queueSize bounds how many requests may wait before
// Submit blocks the caller.
func New(codecs *decode.Registry, queueSize int) *Loader {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	l := &Loader{
		codecs:   codecs,
		requests: make(chan *request, queueSize),
		gens:     make(map[int]uint64),
	}

	l.wg.Add(1)
	go l.run()
	return l
}

// Submit queues a decode of path for trackID. done is called exactly once,
// on the worker goroutine, unless Submit returns an error.
func (l *Loader) Submit(trackID int, path string, done func(Result)) error {
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()

	if l.closed {
		return ErrLoaderClosed
	}

	l.genMu.Lock()
	l.gens[trackID]++
	gen := l.gens[trackID]
	l.genMu.Unlock()

	l.requests <- &request{trackID: trackID, path: path, gen: gen, done: done}
	return nil
}

// Close stops accepting requests, fails the queued ones with
// ErrLoaderClosed and waits for the worker to exit.
func (l *Loader) Close() error {
	l.closing.Store(true)

	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.requests)
	l.closeMu.Unlock()

	l.wg.Wait()
	return nil
}

func (l *Loader) run() {
	defer l.wg.Done()

	for req := range l.requests {
		res := Result{TrackID: req.trackID, Path: req.path}

		switch {
		case l.closing.Load():
			res.Err = ErrLoaderClosed
		case l.superseded(req):
			res.Err = ErrSuperseded
		default:
			res.Source, res.Err = l.codecs.DecodeFile(req.path)
			if res.Err == nil && l.superseded(req) {
				applog.Debugf("Loader: dropping superseded decode of %s for track %d", req.path, req.trackID)
				res.Source, res.Err = nil, ErrSuperseded
			}
		}

		if req.done != nil {
			req.done(res)
		}
	}
}

func (l *Loader) superseded(req *request) bool {
	l.genMu.Lock()
	defer l.genMu.Unlock()
	return l.gens[req.trackID] != req.gen
}
