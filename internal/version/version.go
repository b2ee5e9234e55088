// Package version reports the build identity of the tabdeck binary.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/tabdeck"

// buildVersion is set via -ldflags "-X pkt.systems/tabdeck/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Version   string `yaml:"version" json:"version"`
	Module    string `yaml:"module" json:"module"`
	Revision  string `yaml:"revision,omitempty" json:"revision,omitempty"`
	Modified  bool   `yaml:"modified,omitempty" json:"modified,omitempty"`
	GoVersion string `yaml:"go_version" json:"go_version"`
}

// Current returns the best available version string (without dirty suffix).
func Current() string {
	return Read().Version
}

// Read collects the build identity from linker flags and build info.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Module: defaultModule, GoVersion: runtime.Version()}
	vcs := readVCS(info)
	out.Revision = vcs.revision
	out.Modified = vcs.modified
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		if info.GoVersion != "" {
			out.GoVersion = info.GoVersion
		}
	}
	switch {
	case strings.TrimSpace(override) != "":
		out.Version = strings.TrimSuffix(strings.TrimSpace(override), "+dirty")
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = strings.TrimSuffix(info.Main.Version, "+dirty")
	case vcs.pseudo() != "":
		out.Version = vcs.pseudo()
	default:
		out.Version = "v0.0.0-unknown"
	}
	return out
}

type vcsInfo struct {
	revision string
	at       time.Time
	modified bool
}

func readVCS(info *debug.BuildInfo) vcsInfo {
	var out vcsInfo
	if info == nil {
		return out
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				out.at = parsed
			}
		case "vcs.modified":
			out.modified = setting.Value == "true"
		}
	}
	return out
}

// pseudo formats a Go-style pseudo version from the VCS stamp.
func (v vcsInfo) pseudo() string {
	if v.revision == "" || v.at.IsZero() {
		return ""
	}
	rev := v.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + v.at.UTC().Format("20060102150405") + "-" + rev
}
