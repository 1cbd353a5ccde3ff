package version

import "fmt"

const (
	// AppName is the client's display name.
	AppName = "Magene Radar Client"
	// Description is a one-line summary shown by -version.
	Description = "Radar and light telemetry client for the Magene L508"
)

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version and the debug pages.
func String() string {
	return fmt.Sprintf("%s %s (%s, built %s)", AppName, Version, GitSHA, BuildTime)
}
