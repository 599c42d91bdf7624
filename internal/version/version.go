package version

var (
	// Set during the build process using ldflags
	Version   = "development"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// GetVersion returns the full version string
func GetVersion() string {
	return Version + " (" + CommitSHA + ") built at " + BuildTime
}
