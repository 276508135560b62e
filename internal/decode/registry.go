// SPDX-License-Identifier: MIT
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Decoder constructs a Source from a seekable reader positioned at the
// start of the file.
type Decoder interface {
	Decode(r io.ReadSeeker) (*Source, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(r io.ReadSeeker) (*Source, error)

func (f DecoderFunc) Decode(r io.ReadSeeker) (*Source, error) { return f(r) }

// Registry maps format names (e.g. "wav", "ogg") to decoders, and file
// extensions to format names.
type Registry struct {
	codecs map[string]Decoder
	exts   map[string]string

	mtx sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
		exts:   make(map[string]string),
	}
}

// DefaultRegistry returns a registry with every built-in format.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("wav", WAV{}, ".wav", ".wave")
	r.Register("aiff", AIFF{}, ".aif", ".aiff", ".aifc")
	r.Register("mp3", MP3{}, ".mp3")
	r.Register("ogg", Vorbis{}, ".ogg", ".oga")
	r.Register("flac", FLAC{}, ".flac")
	return r
}

// Register adds or replaces the decoder for format and associates the given
// extensions (with leading dot, case-insensitive) with it.
func (r *Registry) Register(format string, d Decoder, exts ...string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
	for _, ext := range exts {
		r.exts[strings.ToLower(ext)] = format
	}
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	d, ok := r.codecs[format]
	return d, ok
}

// Formats lists the registered format names in sorted order.
func (r *Registry) Formats() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	out := make([]string, 0, len(r.codecs))
	for f := range r.codecs {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Probe picks a decoder for a file. The magic bytes in header win over the
// extension of name, so misnamed files still decode.
func (r *Registry) Probe(header []byte, name string) (string, Decoder, bool) {
	if format := sniff(header); format != "" {
		if d, ok := r.Get(format); ok {
			return format, d, true
		}
	}

	r.mtx.RLock()
	format, ok := r.exts[strings.ToLower(filepath.Ext(name))]
	r.mtx.RUnlock()
	if !ok {
		return "", nil, false
	}

	d, ok := r.Get(format)
	return format, d, ok
}

// DecodeFile opens, probes and fully decodes path. It performs blocking I/O
// and must never run on the real-time path.
func (r *Registry) DecodeFile(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}

	format, d, ok := r.Probe(header[:n], path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	src, err := d.Decode(f)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrCorruptFile) {
			return nil, fmt.Errorf("decode %s as %s: %w", filepath.Base(path), format, err)
		}
		return nil, fmt.Errorf("decode %s as %s: %w: %w", filepath.Base(path), format, ErrCorruptFile, err)
	}

	src.path = path
	src.format = format
	return src, nil
}

func sniff(h []byte) string {
	switch {
	case len(h) >= 12 && bytes.Equal(h[0:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WAVE")):
		return "wav"
	case len(h) >= 12 && bytes.Equal(h[0:4], []byte("FORM")) &&
		(bytes.Equal(h[8:12], []byte("AIFF")) || bytes.Equal(h[8:12], []byte("AIFC"))):
		return "aiff"
	case len(h) >= 4 && bytes.Equal(h[0:4], []byte("OggS")):
		return "ogg"
	case len(h) >= 4 && bytes.Equal(h[0:4], []byte("fLaC")):
		return "flac"
	case len(h) >= 3 && bytes.Equal(h[0:3], []byte("ID3")):
		return "mp3"
	case len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}
