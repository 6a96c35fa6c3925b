// Package version reports build metadata stamped at link time
package version

// BuildInfo holds version information about the build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	// MetricsSchema is the snapshot schema version this build writes
	MetricsSchema int `json:"metrics_schema"`
}

// set with -ldflags "-X devflow/internal/core/version.version=v0.1.0 -X ...commit=abcd -X ...date=2026-01-01"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Info returns the build information for service
func Info(service string, schema int) BuildInfo {
	return BuildInfo{
		Service:       service,
		Version:       version,
		Commit:        commit,
		Date:          date,
		MetricsSchema: schema,
	}
}

// String is the one line banner commands log at start
func (b BuildInfo) String() string {
	return b.Service + " " + b.Version + " (" + b.Commit + ", " + b.Date + ")"
}
