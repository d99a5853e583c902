// Package version builds the instrumentation-version strings passed
// to OpenTelemetry tracers across the module. Every tracer is created
// with a version derived from a single major number so bumping the
// major is a one-line change regardless of how many packages create
// tracers.
package version

import "fmt"

// Version is an instrumentation version string for a given major
// release. Call New(major) once per major bump; callers then pick a
// pre-release qualifier with Alpha, Beta, or Release.
type Version struct {
	major int
}

// New returns a Version for the given major release number.
func New(major int) Version {
	return Version{major: major}
}

// Alpha returns the version string for the nth alpha of this major
// release, e.g. Alpha(1) -> "1.0.0-alpha.1".
func (v Version) Alpha(n int) string {
	return fmt.Sprintf("%d.0.0-alpha.%d", v.major, n)
}

// Beta returns the version string for the nth beta of this major
// release, e.g. Beta(1) -> "1.0.0-beta.1".
func (v Version) Beta(n int) string {
	return fmt.Sprintf("%d.0.0-beta.%d", v.major, n)
}

// Release returns the stable version string for this major release,
// e.g. Release() -> "1.0.0".
func (v Version) Release() string {
	return fmt.Sprintf("%d.0.0", v.major)
}
