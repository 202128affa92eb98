// Package version reports build information. The variables are set at link time, e.g.
// -ldflags "-X github.com/sentichat/sentichat/pkg/version.gitCommit=$(git rev-parse HEAD)".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	gitCommit = ""
	buildDate = ""
)

type Info struct {
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the linked build information, falling back to the VCS stamp recorded by the
// go toolchain.
func Get() Info {
	info := Info{
		GitCommit: gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			}
		}
	}

	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	return info
}
