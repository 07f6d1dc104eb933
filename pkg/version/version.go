// Package version carries build metadata stamped in via ldflags.
package version

import "runtime"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
	// GitCommit is the short commit hash of the build.
	GitCommit = "unknown"
	// GoVersion is the toolchain the binary was built with.
	GoVersion = runtime.Version()
)

// Info returns the build metadata for the /status endpoint and startup logs.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}
