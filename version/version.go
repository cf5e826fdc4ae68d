// Package version provides the version information for devstack.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Package is filled at linking time
	Package = "github.com/leptonai/devstack"

	// Version holds the complete version number. Filled in at linking time.
	Version = "0.0.1+unknown"

	// Revision is filled with the VCS (e.g. git) revision being used to build
	// the program at linking time.
	Revision = ""

	// BuildTimestamp is the build timestamp.
	BuildTimestamp = ""

	// GoVersion is Go tree's version.
	GoVersion = runtime.Version()
)

// String returns the one-line version summary printed by "devstack version".
func String() string {
	s := fmt.Sprintf("%s %s (%s/%s, %s)", Package, Version, runtime.GOOS, runtime.GOARCH, GoVersion)
	if Revision != "" {
		s += " revision " + Revision
	}
	if BuildTimestamp != "" {
		s += " built " + BuildTimestamp
	}
	return s
}
