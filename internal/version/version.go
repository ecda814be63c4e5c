// Package version defines gymharness version information and build metadata.
//
// CommitHash should be set using -ldflags during compilation.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// CommitHash stores the current git commit hash of this build.
var CommitHash string

// semanticAlphabet is the allowed character set for pre-release strings.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// These constants define the application version per semver 2.0.0.
const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	appPreRelease = "alpha"
)

// Version returns the semantic version.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if pre := normalize(appPreRelease); pre != "" {
		version += "-" + pre
	}
	return version
}

// RichVersion returns the semantic version with the commit hash, falling back
// to the VCS revision the Go toolchain embedded.
func RichVersion() string {
	commit := strings.TrimSpace(CommitHash)
	if commit == "" {
		commit = vcsRevision()
	}
	if commit == "" {
		return Version()
	}
	return fmt.Sprintf("%s commit_hash=%s", Version(), commit)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(semanticAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
