package version

// Set at build time with -ldflags "-X github.com/rowjay/tzwindow/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
