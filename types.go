// Package autover calculates the next semantic version of a repository from
// the share of its lines touched between two commits.
package autover

import (
	"strings"
)

// Version is a parsed or computed semantic version. Its string form is always
// rendered from the fields, never stored.
type Version struct {
	Major         uint64 `json:"major" yaml:"major"`
	Minor         uint64 `json:"minor" yaml:"minor"`
	Patch         uint64 `json:"patch" yaml:"patch"`
	Prerelease    string `json:"prerelease" yaml:"prerelease"`
	BuildMetadata string `json:"build_metadata" yaml:"build_metadata"`

	// VPrefix renders the version with a leading "v".
	VPrefix bool `json:"v_prefix" yaml:"v_prefix"`
}

// DiffSummary is the raw outcome of a diff between two references
type DiffSummary struct {
	FilesChanged int `json:"files_changed" yaml:"files_changed"`
	FilesAdded   int `json:"files_added" yaml:"files_added"`
	FilesRemoved int `json:"files_removed" yaml:"files_removed"`
	Insertions   int `json:"insertions" yaml:"insertions"`
	Deletions    int `json:"deletions" yaml:"deletions"`
}

// ChangeStats is a DiffSummary measured against the size of the codebase
type ChangeStats struct {
	DiffSummary `yaml:",inline"`

	// TotalLines is the denominator the percentages were computed against.
	TotalLines       int     `json:"total_lines" yaml:"total_lines"`
	InsertionPercent float64 `json:"insertion_percent" yaml:"insertion_percent"`
	DeletionPercent  float64 `json:"deletion_percent" yaml:"deletion_percent"`
}

// Thresholds are the percentage limits of the patch and minor tiers. Anything
// above MinorLimit is a major change.
type Thresholds struct {
	PatchLimit float64 `json:"patch_limit" yaml:"patch_limit"`
	MinorLimit float64 `json:"minor_limit" yaml:"minor_limit"`
}

// DefaultThresholds returns the limits used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{PatchLimit: 10, MinorLimit: 75}
}

// Channel is a prerelease channel
type Channel int

const (
	ChannelNone Channel = iota
	ChannelAlpha
	ChannelBeta
	ChannelRC
)

func (c Channel) String() string {
	switch c {
	case ChannelAlpha:
		return "alpha"
	case ChannelBeta:
		return "beta"
	case ChannelRC:
		return "rc"
	default:
		return ""
	}
}

// ChannelFromFlags picks a channel from the CLI flags. Alpha wins over beta,
// beta wins over rc.
func ChannelFromFlags(alpha, beta, rc bool) Channel {
	switch {
	case alpha:
		return ChannelAlpha
	case beta:
		return ChannelBeta
	case rc:
		return ChannelRC
	default:
		return ChannelNone
	}
}

// Bump is the tier a change was classified into
type Bump int

const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

func (b Bump) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

// MarshalText lets Bump render by name in JSON and YAML reports.
func (b Bump) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// BumpOptions configures the rendering and prerelease handling of a computed version
type BumpOptions struct {
	// IncludePrefix renders the version as "vX.Y.Z"
	IncludePrefix bool

	// Channel selects a prerelease channel. Any channel suppresses the patch rule.
	Channel Channel

	// PrereleaseTag is an extra prerelease suffix, e.g. "nightly"
	PrereleaseTag string

	// BuildMetadata is copied verbatim into the result
	BuildMetadata string
}

// Result is the outcome of ComputeNextVersion
type Result struct {
	Version   Version `json:"version" yaml:"version"`
	Bump      Bump    `json:"bump" yaml:"bump"`
	MaxChange float64 `json:"max_change" yaml:"max_change"`

	// BigChange is set when the minor or major tier fired. It resets prerelease counters.
	BigChange bool `json:"big_change" yaml:"big_change"`
}

// hasChannelWord reports whether s already names a prerelease channel
func hasChannelWord(s string) bool {
	for _, c := range []Channel{ChannelAlpha, ChannelBeta, ChannelRC} {
		if strings.Contains(s, c.String()) {
			return true
		}
	}
	return false
}
