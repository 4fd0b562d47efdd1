package codexcontract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// TestedCLIVersion is the Codex CLI version this package was validated against.
const TestedCLIVersion = "0.98.0"

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// CLIVersion represents a parsed semver-like CLI version.
type CLIVersion struct {
	Major int
	Minor int
	Patch int
	Raw   string
}

// ParseVersion parses versions like "0.34.1" or "codex-cli 0.98.0".
func ParseVersion(s string) (*CLIVersion, error) {
	s = strings.TrimSpace(s)

	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])

	return &CLIVersion{Major: major, Minor: minor, Patch: patch, Raw: m[0]}, nil
}

// MustParseVersion parses a version and panics on invalid input.
func MustParseVersion(s string) *CLIVersion {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as a string.
func (v *CLIVersion) String() string {
	return v.Raw
}

// Compare returns -1 when v < other, 0 when equal, and 1 when v > other.
func (v *CLIVersion) Compare(other *CLIVersion) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	return 0
}

// IsNewerThan reports whether v is newer than other.
func (v *CLIVersion) IsNewerThan(other *CLIVersion) bool {
	return v.Compare(other) > 0
}

// WarnIfUntested warns when the runtime CLI is newer than the tested version.
func (v *CLIVersion) WarnIfUntested(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	tested := MustParseVersion(TestedCLIVersion)
	if v.IsNewerThan(tested) {
		logger.Warn("Codex CLI version is newer than tested version",
			"cli_version", v.Raw,
			"tested_version", TestedCLIVersion,
			"note", "app-server protocol may have changed")
	}
}
