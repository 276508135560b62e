// SPDX-License-Identifier: MIT
package notify

// Event is the closed set of engine notifications. Kind is the tag used by
// listeners and by wire encodings to tell the variants apart.
type Event interface {
	Kind() string
	sealed()
}

// FileLoaded reports a track whose file decoded and was swapped in.
type FileLoaded struct {
	TrackID    int    `json:"track_id"`
	Path       string `json:"path"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// LoadFailed reports a load that left the registry untouched.
type LoadFailed struct {
	TrackID int    `json:"track_id"`
	Path    string `json:"path"`
	Reason  string `json:"reason"`
}

type TrackRemoved struct {
	TrackID int `json:"track_id"`
}

type BPMChanged struct {
	BPM int `json:"bpm"`
}

type KeyChanged struct {
	Key string `json:"key"`
}

type PlaybackStarted struct{}

type PlaybackStopped struct{}

func (FileLoaded) Kind() string      { return "file_loaded" }
func (LoadFailed) Kind() string      { return "load_failed" }
func (TrackRemoved) Kind() string    { return "track_removed" }
func (BPMChanged) Kind() string      { return "bpm_changed" }
func (KeyChanged) Kind() string      { return "key_changed" }
func (PlaybackStarted) Kind() string { return "playback_started" }
func (PlaybackStopped) Kind() string { return "playback_stopped" }

func (FileLoaded) sealed()      {}
func (LoadFailed) sealed()      {}
func (TrackRemoved) sealed()    {}
func (BPMChanged) sealed()      {}
func (KeyChanged) sealed()      {}
func (PlaybackStarted) sealed() {}
func (PlaybackStopped) sealed() {}
