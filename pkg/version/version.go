package version

// Application version information
var (
	Version = "dev"
	Commit  = ""
)
