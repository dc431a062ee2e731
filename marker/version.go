package marker

// Version represents the current semantic version of the essay-marker library.
//
// The version follows semantic versioning (MAJOR.MINOR.PATCH). Pre-1.0
// releases may contain breaking changes between minor versions.
const Version = "0.1.0"

// VersionInfo encapsulates version metadata for the essay-marker library.
type VersionInfo struct {
	// Version contains the semantic version string following semver format
	Version string

	// Name contains the canonical library name for identification purposes
	Name string
}

// GetVersion returns structured version information for the essay-marker library.
//
// Usage:
//
//	info := marker.GetVersion()
//	slog.Info("starting", "name", info.Name, "version", info.Version)
func GetVersion() VersionInfo {
	return VersionInfo{
		Version: Version,
		Name:    "essay-marker",
	}
}
