// Package buildinfo reports the version metadata compiled into the mmr
// binary: module version, embedded vcs revision, and build tags.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

func setting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// Version returns the module version or "dev" when unset.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return "dev"
	}
	version := info.Main.Version
	if version == "" || version == "(devel)" {
		return "dev"
	}
	return version
}

// Revision returns the short vcs revision embedded at build time, with a
// "+dirty" suffix when the build tree had local modifications.
func Revision() string {
	rev := setting("vcs.revision")
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && setting("vcs.modified") == "true" {
		rev += "+dirty"
	}
	return rev
}

// Tags returns the build tags recorded at compile time.
func Tags() string {
	return setting("-tags")
}

// VersionWithTags returns the version string, the vcs revision, and the
// build tags when present.
func VersionWithTags() string {
	out := Version()
	if rev := Revision(); rev != "" {
		out = fmt.Sprintf("%s (%s)", out, rev)
	}
	if tags := Tags(); tags != "" {
		out = fmt.Sprintf("%s (tags: %s)", out, tags)
	}
	return out
}
