package version

// Version is the labelforge version. It is overridden at build time with
// -ldflags "-X github.com/labelforge/labelforge/internal/version.Version=...".
var Version = "0.1.0-dev"

// GitCommit is the commit the binary was built from, if known.
var GitCommit = ""

// String returns the version with the commit appended when known.
func String() string {
	if GitCommit == "" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
