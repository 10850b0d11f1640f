// Package version reports the bot build, set through -ldflags at link time:
//
//	go build -ldflags "-X .../internal/platform/version.Version=v1.2.0 -X .../internal/platform/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String renders the build as "v1.2.0 (abc1234, go1.24.0)".
func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s)", i.Version, i.Commit, i.GoVersion)
}
