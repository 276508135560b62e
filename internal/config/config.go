// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the playback engine.
const (
	DefaultBackend         = BackendPortAudio
	DefaultOutputDevice    = MinDeviceID // system default output
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512 // Balanced latency/performance
	DefaultOutputChannels  = 2   // Stereo, like the original desktop player
	DefaultLowLatency      = false
	DefaultBPM             = 120
	DefaultKey             = "C"
	DefaultLoaderQueue     = 16
	DefaultRemoteAddress   = "127.0.0.1:8080"
	DefaultLogLevel        = "info"
	DefaultHeadlessTick    = 0 // derive from block size
	DefaultUDPInterval     = 16 * time.Millisecond

	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MaxChannels     = 8
)

// Output backends.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
	BackendHeadless  = "headless"
)

// Config is the complete runtime configuration. It is built from defaults,
// an optional YAML file, ENV_* overrides and finally command line flags.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	Audio  AudioConfig  `yaml:"audio"`
	Engine EngineConfig `yaml:"engine"`
	Remote RemoteConfig `yaml:"remote"`

	// Set by the CLI only.
	Files   []string `yaml:"-"`
	Command string   `yaml:"-"`
	TUIMode bool     `yaml:"-"`
}

// AudioConfig selects and configures the output device.
type AudioConfig struct {
	Backend         string        `yaml:"backend"`           // portaudio, oto or headless.
	OutputDevice    int           `yaml:"output_device"`     // PortAudio device index (-1 for default).
	SampleRate      float64       `yaml:"sample_rate"`       // Output sample rate in Hz.
	FramesPerBuffer int           `yaml:"frames_per_buffer"` // Block size handed to the render callback.
	OutputChannels  int           `yaml:"output_channels"`   // 1 for mono, 2 for stereo.
	LowLatency      bool          `yaml:"low_latency"`       // Request low latency settings from the device.
	HeadlessTick    time.Duration `yaml:"headless_tick"`     // Render period for the headless backend; 0 = real time.
}

// EngineConfig holds transport metadata defaults and loader sizing.
type EngineConfig struct {
	BPM         int    `yaml:"bpm"`
	Key         string `yaml:"key"`
	LoaderQueue int    `yaml:"loader_queue"` // Pending loads before LoadFile blocks.
}

// RemoteConfig controls the WebSocket event bridge.
type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // WebSocket listen address.

	// Browser origins, e.g. "http://localhost:3000", allowed besides the
	// endpoint's own host. Clients that send no Origin are always accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Optional UDP position feed; empty target disables it.
	UDPTarget   string        `yaml:"udp_target"`
	UDPInterval time.Duration `yaml:"udp_interval"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    DefaultOutputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			OutputChannels:  DefaultOutputChannels,
			LowLatency:      DefaultLowLatency,
			HeadlessTick:    DefaultHeadlessTick,
		},
		Engine: EngineConfig{
			BPM:         DefaultBPM,
			Key:         DefaultKey,
			LoaderQueue: DefaultLoaderQueue,
		},
		Remote: RemoteConfig{
			Enabled:     false,
			Address:     DefaultRemoteAddress,
			UDPInterval: DefaultUDPInterval,
		},
	}
}
