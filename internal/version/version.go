// Package version holds build information stamped in via ldflags:
//
//	-X github.com/jmylchreest/streamresolver/internal/version.Version=v1.2.3
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// Get returns the current version info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
	}
}

// String renders "v1.2.3 (abc1234, 2025-01-01, go1.25.5)".
func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s, %s)", i.Version, shortCommit(i.Commit), i.Date, i.GoVersion)
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
