// Package version holds build-time version information injected via ldflags.
package version

import "fmt"

// These variables are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build information for the version command.
func String() string {
	return fmt.Sprintf("devprobe %s (commit %s, built %s)", Version, Commit, Date)
}
