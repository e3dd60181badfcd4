// Package version exposes the tanuki build version stamped at link time.
package version

// version is set at build time via -ldflags.
var version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var

// String returns the version the tanuki binaries report.
func String() string {
	return version
}
