// Package version exposes build metadata injected at link time.
package version

import "fmt"

var (
	// Version is the semantic version, set via -ldflags.
	Version = "dev"
	// Commit is the short git commit hash, set via -ldflags.
	Commit = ""
)

// GetInfo returns a printable version string.
func GetInfo() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
