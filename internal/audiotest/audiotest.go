// SPDX-License-Identifier: MIT
//
// Package audiotest holds fixtures shared by the engine's package tests:
// signal generators, a WAV writer and a recording transport.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MockTransport records everything sent to it instead of transmitting.
type MockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent returns a copy of the payloads received so far.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.sent...)
}

func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateSineWave returns interleaved 16-bit samples of a sine at
// frequency, identical on every channel.
func GenerateSineWave(frames, channels int, sampleRate, frequency float64) []int {
	buffer := make([]int, frames*channels)
	for i := range frames {
		t := float64(i) / sampleRate
		v := int(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * 0.9)
		for c := range channels {
			buffer[i*channels+c] = v
		}
	}
	return buffer
}

// GenerateConstant returns interleaved 16-bit samples all equal to value.
func GenerateConstant(frames, channels, value int) []int {
	buffer := make([]int, frames*channels)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}

// WriteWAV writes a 16-bit PCM WAV file into dir and returns its path.
func WriteWAV(tb testing.TB, dir, name string, sampleRate, channels int, samples []int) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		tb.Fatalf("encode %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		tb.Fatalf("finalise %s: %v", path, err)
	}
	return path
}

// WriteFile writes raw bytes, for corrupt or foreign-format fixtures.
func WriteFile(tb testing.TB, dir, name string, content []byte) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
