// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "mixdeck/internal/log"
	"mixdeck/pkg/bitint"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches default locations ("mixdeck.yaml", "config.yaml"). If
// no file is found, it uses built-in defaults. After loading defaults or
// from file, it applies environment variable overrides and validates the
// final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range []string{"mixdeck.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("configuration: loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}

	switch c.Audio.Backend {
	case BackendPortAudio, BackendOto, BackendHeadless:
	default:
		return fmt.Errorf("%w: audio.backend %q (want %s, %s or %s)",
			ErrInvalidConfig, c.Audio.Backend, BackendPortAudio, BackendOto, BackendHeadless)
	}
	if c.Audio.OutputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.output_device %d", ErrInvalidConfig, c.Audio.OutputDevice)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %.0f outside [%d, %d]",
			ErrInvalidConfig, c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d must be a power of two <= %d (try %d)",
			ErrInvalidConfig, c.Audio.FramesPerBuffer, MaxBufferFrames,
			min(bitint.NextPowerOfTwo(c.Audio.FramesPerBuffer), MaxBufferFrames))
	}
	if c.Audio.OutputChannels < 1 || c.Audio.OutputChannels > MaxChannels {
		return fmt.Errorf("%w: audio.output_channels %d", ErrInvalidConfig, c.Audio.OutputChannels)
	}
	if c.Audio.HeadlessTick < 0 {
		return fmt.Errorf("%w: audio.headless_tick %s", ErrInvalidConfig, c.Audio.HeadlessTick)
	}

	if c.Engine.BPM <= 0 {
		return fmt.Errorf("%w: engine.bpm %d must be positive", ErrInvalidConfig, c.Engine.BPM)
	}
	if c.Engine.Key == "" {
		return fmt.Errorf("%w: engine.key must not be empty", ErrInvalidConfig)
	}
	if c.Engine.LoaderQueue <= 0 {
		return fmt.Errorf("%w: engine.loader_queue %d must be positive", ErrInvalidConfig, c.Engine.LoaderQueue)
	}

	if c.Remote.Enabled && c.Remote.Address == "" {
		return fmt.Errorf("%w: remote.address must be set when remote is enabled", ErrInvalidConfig)
	}
	if c.Remote.UDPInterval < 0 {
		return fmt.Errorf("%w: remote.udp_interval %s", ErrInvalidConfig, c.Remote.UDPInterval)
	}
	for _, origin := range c.Remote.AllowedOrigins {
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: remote.allowed_origins entry %q is not scheme://host[:port]", ErrInvalidConfig, origin)
		}
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of file values.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			applog.Debugf("configuration: overriding debug from env: %v", b)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}

	// ENV_AUDIO_{...}

	// ENV_AUDIO_BACKEND
	if val, ok := os.LookupEnv("ENV_AUDIO_BACKEND"); ok {
		c.Audio.Backend = val
	}
	// ENV_AUDIO_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_AUDIO_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = f
		}
	}
	// ENV_AUDIO_FRAMES_PER_BUFFER
	if val, ok := os.LookupEnv("ENV_AUDIO_FRAMES_PER_BUFFER"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.FramesPerBuffer = n
		}
	}
	// ENV_AUDIO_HEADLESS_TICK
	if val, ok := os.LookupEnv("ENV_AUDIO_HEADLESS_TICK"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Audio.HeadlessTick = d
		}
	}

	// ENV_REMOTE_{...}

	// ENV_REMOTE_ENABLED
	if val, ok := os.LookupEnv("ENV_REMOTE_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Remote.Enabled = b
		}
	}
	// ENV_REMOTE_ADDRESS
	if val, ok := os.LookupEnv("ENV_REMOTE_ADDRESS"); ok {
		c.Remote.Address = val
	}
	// ENV_REMOTE_UDP_TARGET
	if val, ok := os.LookupEnv("ENV_REMOTE_UDP_TARGET"); ok {
		c.Remote.UDPTarget = val
	}
	// ENV_REMOTE_ALLOWED_ORIGINS, comma separated
	if val, ok := os.LookupEnv("ENV_REMOTE_ALLOWED_ORIGINS"); ok {
		c.Remote.AllowedOrigins = nil
		for origin := range strings.SplitSeq(val, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Remote.AllowedOrigins = append(c.Remote.AllowedOrigins, origin)
			}
		}
	}
}
