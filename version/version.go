package version

var (
	// Version can also be set through tag release at build time
	semver   = "0.3.0"
	revision = "unknown"
)

// Get returns the version. We inject this at build time when tagging a release.
func Get() string {
	return semver
}

func Commit() string {
	return revision
}
