// Package version reports the notebooklm build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/lphhien112-gif/NOTEBOOKLM/pkg/version.Version=v1.2.3".
// Values left at their defaults are filled from the VCS stamp in the
// binary's build info when there is one.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// GoVersion is the toolchain that built the binary.
var GoVersion = runtime.Version()

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	fillFromBuildInfo(info)
}

func fillFromBuildInfo(info *debug.BuildInfo) {
	// Pseudo-versions and "(devel)" are not release tags.
	if v := info.Main.Version; Version == "dev" && strings.HasPrefix(v, "v") && !strings.Contains(v, "-") {
		Version = v
	}

	var revision, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			if Date == "unknown" {
				Date = s.Value
			}
		case "vcs.modified":
			modified = s.Value
		}
	}
	if Commit == "unknown" && revision != "" {
		Commit = revision[:min(7, len(revision))]
		if modified == "true" {
			Commit += "-dirty"
		}
	}
}

// BuildInfo is the JSON form of `notebooklm version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func String() string {
	return fmt.Sprintf("notebooklm %s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}

func Short() string { return Version }

func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
