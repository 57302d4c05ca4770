// Package version holds build metadata injected via ldflags.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent returns the product token sent to external services.
func UserAgent() string {
	return "geoquery/" + Version
}
