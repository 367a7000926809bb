package app

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
	// Commit is filled by ldflags in release builds; otherwise read from VCS build info.
	Commit = ""
)

func BuildVersion() string {
	version := strings.TrimSpace(Version)
	if version == "" {
		return "dev"
	}

	return version
}

func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format(time.DateOnly)
	}

	if len(raw) >= len(time.DateOnly) {
		date := raw[:len(time.DateOnly)]
		if _, err := time.Parse(time.DateOnly, date); err == nil {
			return date
		}
	}

	return raw
}

// BuildCommit returns a short commit hash or an empty string when unknown.
func BuildCommit() string {
	commit := strings.TrimSpace(Commit)
	if commit == "" {
		commit = vcsRevision()
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}

	return commit
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}

	return ""
}

func BuildVersionWithDate() string {
	version := BuildVersion()
	if buildDate := BuildDateYMD(); buildDate != "" {
		return fmt.Sprintf("%s (%s)", version, buildDate)
	}

	return version
}

// IsReleaseBuild reports whether the build carries a semantic version.
func IsReleaseBuild() bool {
	return semver.IsValid(normalizeSemver(BuildVersion()))
}

func normalizeSemver(version string) string {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" || strings.HasPrefix(trimmed, "v") {
		return trimmed
	}

	return "v" + trimmed
}

// BuildSummary is the one-line version banner printed by the CLI.
func BuildSummary() string {
	summary := fmt.Sprintf("%s %s", Name, BuildVersionWithDate())
	if commit := BuildCommit(); commit != "" {
		summary += " commit " + commit
	}
	if !IsReleaseBuild() {
		summary += " (development build)"
	}

	return summary
}
