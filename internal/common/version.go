package common

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/mileslinfeng/MilesRI/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// BuildInfo describes the running earnings-server binary
type BuildInfo struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// String renders the banner form, e.g. "1.2.0 (build: 2025-08-01, commit: 4f2a9c1)"
func (b BuildInfo) String() string {
	commit := b.Commit
	if b.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("%s (build: %s, commit: %s)", b.Version, b.Build, commit)
}

var (
	buildOnce sync.Once
	buildInfo BuildInfo
)

// CurrentBuild returns the ldflags values, falling back to the VCS stamp
// the go tool embeds when the binary was built without them.
func CurrentBuild() BuildInfo {
	buildOnce.Do(func() {
		buildInfo = resolveBuild(Version, Build, GitCommit, debug.ReadBuildInfo)
	})
	return buildInfo
}

func resolveBuild(version, build, commit string, read func() (*debug.BuildInfo, bool)) BuildInfo {
	info := BuildInfo{
		Version:   version,
		Build:     build,
		Commit:    commit,
		GoVersion: runtime.Version(),
	}

	bi, ok := read()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.Build == "unknown" {
				info.Build = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
