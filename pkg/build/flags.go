// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. Metadata such as the application name, build timestamp,
// Git commit hash and semantic version is embedded at compile time using linker
// flags:
//
//	go build -ldflags "-X mixdeck/pkg/build.buildVersion=0.3.0 -X mixdeck/pkg/build.buildCommit=$(git rev-parse HEAD)"
//
// Values not supplied through ldflags fall back to the module's embedded VCS
// information, so plain `go build` and `go run` still report something useful.
package build

import (
	"fmt"
	"runtime/debug"
	"time"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

const (
	defaultName        = "mixdeck"
	defaultDescription = "Multi-track looping audio player"
	unknown            = "unknown"
)

// Package-level variables for build information. These are populated by -ldflags
// during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        defaultName,
		Description: defaultDescription,
		Time:        unknown,
		Commit:      unknown,
		Version:     unknown,
	}

	readBuildInfo = debug.ReadBuildInfo
)

// Initialize copies build information from ldflags variables into the
// buildFlags struct, filling gaps from the embedded build info. Returns an
// error if a supplied build time is not RFC3339.
func Initialize() error {
	if buildTime != "" {
		if _, err := time.Parse(time.RFC3339, buildTime); err != nil {
			return fmt.Errorf("BuildTime must be RFC3339: %w", err)
		}
	}

	flags := ldFlags{
		Name:        or(buildName, defaultName),
		Description: defaultDescription,
		Time:        buildTime,
		Commit:      buildCommit,
		Version:     buildVersion,
	}

	if info, ok := readBuildInfo(); ok {
		if flags.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			flags.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				flags.Commit = or(flags.Commit, s.Value)
			case "vcs.time":
				flags.Time = or(flags.Time, s.Value)
			}
		}
	}

	flags.Time = or(flags.Time, unknown)
	flags.Commit = or(flags.Commit, unknown)
	flags.Version = or(flags.Version, unknown)
	*buildFlags = flags
	return nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// GetBuildFlags returns the current build information. Initialize()
// should be called first.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String renders the version line shown by --version.
func (f *ldFlags) String() string {
	commit := f.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, commit, f.Time)
}
