// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the human-readable build line printed by the version command.
func String() string {
	return fmt.Sprintf("testbook %s (%s, %s)", Version, Commit, Date)
}

// ServiceVersion is the value reported as the telemetry service version.
func ServiceVersion() string {
	if Commit == "" || Commit == "none" {
		return Version
	}
	return Version + "+" + Commit
}
