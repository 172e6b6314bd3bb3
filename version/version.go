package version

// values are set at build time via ldflags
var (
	// Version is the semantic version of this build.
	Version = "0.0.0-dev"
	// GitCommit is the git sha of this build.
	GitCommit = "unknown"
	// BuildDate is the RFC3339 timestamp of this build.
	BuildDate = "unknown"
	// FullVersion combines version and build metadata.
	FullVersion = Version + " (" + GitCommit + " " + BuildDate + ")"
)
