// Package version reports which pharmabot build is running. Release builds
// stamp the variables with -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/pharmabot/internal/version.Version=v1.2.3 \
//	                    -X github.com/54b3r/pharmabot/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/pharmabot/internal/version.BuildDate=2026-01-01"
//
// Unstamped builds fall back to the module and VCS data the Go toolchain
// embeds, then to "dev" / "unknown".
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Build is the resolved build identity.
type Build struct {
	Version   string
	Commit    string
	BuildDate string
	Modified  bool
}

var (
	resolveOnce sync.Once
	resolved    Build
)

// Get returns the build identity, filling unstamped fields from the embedded
// build info once.
func Get() Build {
	resolveOnce.Do(func() {
		resolved = resolve(Build{Version: Version, Commit: Commit, BuildDate: BuildDate}, debug.ReadBuildInfo)
	})
	return resolved
}

// resolve fills the defaults in b from read.
func resolve(b Build, read func() (*debug.BuildInfo, bool)) Build {
	info, ok := read()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" && s.Value != "" {
				b.Commit = s.Value
				if len(b.Commit) > 7 {
					b.Commit = b.Commit[:7]
				}
			}
		case "vcs.time":
			if b.BuildDate == "unknown" && s.Value != "" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// String returns the one-line banner printed by `pharmabot version`.
func String() string {
	return Get().String()
}

func (b Build) String() string {
	commit := b.Commit
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("pharmabot %s (commit %s, built %s)", b.Version, commit, b.BuildDate)
}
