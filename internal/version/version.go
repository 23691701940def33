// Package version reports the build stamped into the binaries.
package version

import "fmt"

// Set with -ldflags "-X mosaic-builder/internal/version.GitCommit=..."
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns the version with commit and build time.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// Generator names this program and version in exported manifests.
func Generator() string {
	return "mosaic-builder " + Version
}
