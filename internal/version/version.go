// Package version carries build identification, overridable at link time.
package version

// Version is the release tag, set via -ldflags "-X ...version.Version=v1.2.3".
var Version = "dev"

// Commit is the short git revision of the build.
var Commit = "unknown"

// String renders the version with the commit when one is known.
func String() string {
	if Commit == "unknown" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
