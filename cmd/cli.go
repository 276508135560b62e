// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mixdeck/internal/config"
	"mixdeck/pkg/build"
)

// Commands dispatched by main.
const (
	CommandPlay    = "play"
	CommandDevices = "devices"
	CommandProbe   = "probe"
)

// flagValues mirrors the configuration surface exposed on the command line.
// Only flags the user actually set are applied over the loaded config.
type flagValues struct {
	configPath      string
	backend         string
	device          int
	sampleRate      float64
	framesPerBuffer int
	channels        int
	lowLatency      bool
	headlessTick    time.Duration
	bpm             int
	key             string
	verbose         bool
	noTUI           bool
	remote          bool
	remoteAddress   string
	udpTarget       string
}

// ParseArgs parses os.Args into a validated configuration. A nil config with
// a nil error means cobra handled the invocation itself (help, version).
func ParseArgs() (*config.Config, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		flags   flagValues
		options *config.Config
	)

	// resolve layers the flags over the file and environment configuration.
	resolve := func(cmd *cobra.Command) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		flags.apply(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		options = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [files...]",
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(cmd); err != nil {
				return err
			}
			options.Command = CommandPlay
			options.Files = args
			options.TUIMode = !flags.noTUI
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	var interactive bool
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(cmd); err != nil {
				return err
			}
			options.Command = CommandDevices
			options.TUIMode = interactive
			return nil
		},
	}
	devicesCmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"Pick a device interactively and print the matching configuration")
	rootCmd.AddCommand(devicesCmd)

	probeCmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Decode a file and print its format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(cmd); err != nil {
				return err
			}
			options.Command = CommandProbe
			options.Files = args
			return nil
		},
	}
	rootCmd.AddCommand(probeCmd)

	pf := rootCmd.PersistentFlags()

	pf.StringVar(&flags.configPath, "config", "",
		"Path to a YAML config file (default: ./mixdeck.yaml or ./config.yaml)")

	// Audio Output Configuration
	pf.StringVar(&flags.backend, "backend", config.DefaultBackend,
		"Output backend: portaudio, oto or headless")
	pf.IntVarP(&flags.device, "device", "d", config.DefaultOutputDevice,
		"Output device ID. Use the 'devices' command to see available devices.")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultOutputChannels,
		"Number of output channels (1=mono, 2=stereo)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.DurationVar(&flags.headlessTick, "headless-tick", config.DefaultHeadlessTick,
		"Render period of the headless backend, e.g. 5ms (0 for real time)")

	// Engine Configuration
	pf.IntVar(&flags.bpm, "bpm", config.DefaultBPM, "Initial tempo in beats per minute")
	pf.StringVar(&flags.key, "key", config.DefaultKey, "Initial musical key")

	// Remote Configuration
	pf.BoolVar(&flags.remote, "remote", false, "Serve the WebSocket control endpoint")
	pf.StringVar(&flags.remoteAddress, "remote-address", config.DefaultRemoteAddress,
		"Listen address of the WebSocket control endpoint")
	pf.StringVar(&flags.udpTarget, "udp-target", "",
		"Publish track positions over UDP to host:port")

	// UI and Debug Configuration
	pf.BoolVar(&flags.noTUI, "no-tui", false, "Play without the terminal deck, until interrupted")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// apply copies every flag the user set onto cfg.
func (f *flagValues) apply(fs *pflag.FlagSet, cfg *config.Config) {
	changed := func(name string) bool {
		fl := fs.Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("backend") {
		cfg.Audio.Backend = f.backend
	}
	if changed("device") {
		cfg.Audio.OutputDevice = f.device
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("channels") {
		cfg.Audio.OutputChannels = f.channels
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("headless-tick") {
		cfg.Audio.HeadlessTick = f.headlessTick
	}
	if changed("bpm") {
		cfg.Engine.BPM = f.bpm
	}
	if changed("key") {
		cfg.Engine.Key = f.key
	}
	if changed("remote") {
		cfg.Remote.Enabled = f.remote
	}
	if changed("remote-address") {
		cfg.Remote.Address = f.remoteAddress
		cfg.Remote.Enabled = true
	}
	if changed("udp-target") {
		cfg.Remote.UDPTarget = f.udpTarget
	}
	if f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
}
