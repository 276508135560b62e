// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"mixdeck/cmd"
	"mixdeck/internal/analysis"
	"mixdeck/internal/audio"
	"mixdeck/internal/config"
	"mixdeck/internal/decode"
	applog "mixdeck/internal/log"
	"mixdeck/internal/output"
	"mixdeck/internal/transport"
	"mixdeck/internal/transport/udp"
	"mixdeck/internal/tui"
	"mixdeck/pkg/build"
)

// main is the entry point for the player.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Execute one-off commands if requested
//   - Create the engine and queue the initial tracks
//
// 2. Concurrent Phase (Hot Path):
//   - Start the output backend, which drives RenderBlock
//   - Serve remote control and position feeds if enabled
//   - Run the deck UI or wait for a signal
//
// 3. Shutdown Phase (Cold Path):
//   - Stop the output backend
//   - Close transports
//   - Close the engine
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		log.Fatal(err)
	}

	cfg, err := cmd.ParseArgs()
	if err != nil {
		log.Fatal(err)
	}

	// Help and version output was handled by the parser.
	if cfg == nil || cfg.Command == "" {
		return
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	if err := executeCommand(cfg); err != nil {
		applog.Fatalf("%v", err)
	}
}

// executeCommand runs the command selected on the command line.
func executeCommand(cfg *config.Config) error {
	switch cfg.Command {
	case cmd.CommandPlay:
		return play(cfg)
	case cmd.CommandDevices:
		return devices(cfg)
	case cmd.CommandProbe:
		return probe(cfg.Files[0])
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

func play(cfg *config.Config) error {
	engine, err := audio.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			applog.Errorf("Error closing audio engine: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			applog.Errorf("Event dispatcher: %v", err)
		}
	}()

	for i, path := range cfg.Files {
		if err := engine.LoadFile(path, i+1); err != nil {
			applog.Warnf("Track %d: %v", i+1, err)
		}
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	if cfg.Remote.Enabled {
		bridge, err := startRemote(cfg, engine)
		if err != nil {
			return err
		}
		defer bridge.Close()
	}

	if cfg.Remote.UDPTarget != "" {
		sender, err := udp.NewUDPSender(cfg.Remote.UDPTarget)
		if err != nil {
			return err
		}
		defer sender.Close()

		publisher, err := udp.NewUDPPublisher(cfg.Remote.UDPInterval, sender, engine)
		if err != nil {
			return err
		}
		publisher.Start()
		defer publisher.Close()
	}

	backend, err := output.New(cfg, engine)
	if err != nil {
		return err
	}

	// CRITICAL: Start of real-time audio processing. From here on the
	// backend calls RenderBlock on its own goroutine.
	if err := backend.Start(); err != nil {
		return err
	}
	defer func() {
		if err := backend.Stop(); err != nil {
			applog.Errorf("Error stopping %s output: %v", backend.Name(), err)
		}
	}()

	if cfg.TUIMode && isatty.IsTerminal(os.Stdout.Fd()) {
		restore := quietLogs(cfg)
		defer restore()
		return tui.Run(engine, engine.AddListener, engine.RemoveListener)
	}

	engine.Play()
	applog.Infof("Playing %d track(s) on %s output, Ctrl+C to stop", len(engine.Tracks()), backend.Name())

	// Block until termination signal is received
	<-ctx.Done()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	engine.Stop()
	return nil
}

// startRemote serves the WebSocket control endpoint and forwards engine
// notifications to it.
func startRemote(cfg *config.Config, engine *audio.Engine) (*transport.Bridge, error) {
	ws := transport.NewWebSocketTransport(cfg.Remote.Address)
	ws.OnCommand(transport.CommandHandlerFor(engine))
	ws.OnConnect(func() any { return transport.StatusOf(engine) })
	ws.AllowOrigins(cfg.Remote.AllowedOrigins...)
	if err := ws.Start(); err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}

	transports := []transport.Transport{ws}
	if cfg.Debug {
		transports = append(transports, transport.NewLoggingTransport())
	}
	return transport.NewBridge(engine, transports...), nil
}

// quietLogs keeps log lines from tearing the deck. In debug mode they go
// to mixdeck.log instead.
func quietLogs(cfg *config.Config) (restore func()) {
	var w io.Writer = io.Discard
	var f *os.File
	if cfg.Debug {
		var err error
		f, err = os.OpenFile("mixdeck.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			w = f
		}
	}
	applog.SetOutput(w)

	return func() {
		applog.SetOutput(os.Stderr)
		if f != nil {
			f.Close()
		}
	}
}

// devices lists output devices, or lets the user pick one and prints the
// matching configuration block.
func devices(cfg *config.Config) error {
	if err := output.Initialize(); err != nil {
		return err
	}
	defer output.Terminate()

	if !cfg.TUIMode {
		return output.ListDevices()
	}

	deviceID, sampleRate, ok, err := tui.PickDevice(output.HostDevices)
	if err != nil || !ok {
		return err
	}

	cfg.Audio.Backend = config.BackendPortAudio
	cfg.Audio.OutputDevice = deviceID
	cfg.Audio.SampleRate = sampleRate
	if err := cfg.Validate(); err != nil {
		return err
	}

	out, err := yaml.Marshal(struct {
		Audio config.AudioConfig `yaml:"audio"`
	}{cfg.Audio})
	if err != nil {
		return err
	}
	fmt.Printf("# Add to mixdeck.yaml\n%s", out)
	return nil
}

// probe decodes path the same way the engine would and prints its format
// and levels.
func probe(path string) error {
	src, err := decode.DefaultRegistry().DecodeFile(path)
	if err != nil {
		return err
	}

	analyzer, err := analysis.NewAnalyzer(analysis.DefaultFFTSize, analysis.Hann)
	if err != nil {
		return err
	}
	summary := analyzer.Summarize(src)

	fmt.Printf("%s\n", path)
	fmt.Printf("    Format: %s\n", src.Format())
	fmt.Printf("    Sample rate: %d Hz, Channels: %d\n", src.SampleRate(), src.Channels())
	fmt.Printf("    Frames: %d, Duration: %s\n", src.Frames(), src.Duration())
	fmt.Printf("    Level: Peak=%.1f dBFS, RMS=%.1f dBFS\n", summary.PeakDBFS, summary.RMSDBFS)
	fmt.Printf("    Dominant frequency: %.1f Hz\n", summary.DominantHz)
	return nil
}
