package otelpgz

import "github.com/go-faster/pgz/internal/version"

// Version is the current release version of the pgz instrumentation.
func Version() string {
	return version.Get().Raw
}

// SemVersion is the semantic version to be supplied to tracer/meter creation.
func SemVersion() string {
	return "semver:" + Version()
}
