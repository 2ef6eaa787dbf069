package autover

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// ErrInvalidVersion is returned by ParseVersion for tags outside the SemVer grammar
var ErrInvalidVersion = errors.New("invalid semantic version")

// semverPattern is the SemVer 2.0.0 grammar with an optional leading "v".
var semverPattern = regexp.MustCompile(
	`^v?(?P<major>0|[1-9]\d*)\.(?P<minor>0|[1-9]\d*)\.(?P<patch>0|[1-9]\d*)` +
		`(?:-(?P<prerelease>(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+(?P<build>[0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`,
)

// DefaultVersion is the version assumed when no release exists yet
func DefaultVersion() Version {
	return Version{VPrefix: true}
}

// ParseVersion parses a release tag such as "v1.2.3-rc.1+build.5"
func ParseVersion(tag string) (Version, error) {
	m := semverPattern.FindStringSubmatch(tag)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, tag)
	}

	var nums [3]uint64
	for i, name := range []string{"major", "minor", "patch"} {
		n, err := strconv.ParseUint(m[semverPattern.SubexpIndex(name)], 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %s out of range", ErrInvalidVersion, tag, name)
		}
		nums[i] = n
	}

	return Version{
		Major:         nums[0],
		Minor:         nums[1],
		Patch:         nums[2],
		Prerelease:    m[semverPattern.SubexpIndex("prerelease")],
		BuildMetadata: m[semverPattern.SubexpIndex("build")],
		VPrefix:       strings.HasPrefix(tag, "v"),
	}, nil
}

// ParseVersionOrDefault parses tag, falling back to DefaultVersion on failure
func ParseVersionOrDefault(tag string) Version {
	v, err := ParseVersion(tag)
	if err != nil {
		return DefaultVersion()
	}
	return v
}

// String renders the canonical form of the version
func (v Version) String() string {
	var b strings.Builder
	if v.VPrefix {
		b.WriteByte('v')
	}
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		b.WriteString("-" + v.Prerelease)
	}
	if v.BuildMetadata != "" {
		b.WriteString("+" + v.BuildMetadata)
	}
	return b.String()
}

// IsZero reports whether the version core is 0.0.0
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

// Semver converts v to a blang semver.Version
func (v Version) Semver() (semver.Version, error) {
	sv := v
	sv.VPrefix = false
	return semver.Parse(sv.String())
}

// Compare orders two versions by SemVer precedence. Versions whose prerelease
// is not valid SemVer are compared by their core only.
func (v Version) Compare(o Version) int {
	a, errA := v.Semver()
	b, errB := o.Semver()
	if errA == nil && errB == nil {
		return a.Compare(b)
	}

	core := func(x Version) semver.Version {
		return semver.Version{Major: x.Major, Minor: x.Minor, Patch: x.Patch}
	}
	return core(v).Compare(core(o))
}

// ComputeNextVersion derives the next version from current and the measured
// change. ok is false when nothing changed; no version should be published then.
func ComputeNextVersion(current Version, stats ChangeStats, limits Thresholds, opts BumpOptions) (Result, bool) {
	maxChange := stats.Max()
	if maxChange == 0 {
		return Result{}, false
	}

	next := current
	res := Result{MaxChange: maxChange}

	// The patch rule runs first and the minor/major rules may override it
	// below. Whether the tiers should instead be mutually exclusive is an
	// open product question; the layered order is kept as released.
	if opts.Channel == ChannelNone && maxChange > 0 && maxChange <= limits.PatchLimit {
		next.Patch++
		res.Bump = BumpPatch
	}

	switch {
	case limits.PatchLimit < maxChange && maxChange <= limits.MinorLimit:
		next.Minor++
		next.Patch = 0
		res.Bump = BumpMinor
		res.BigChange = true
	case maxChange > limits.MinorLimit:
		next.Major++
		next.Minor = 0
		next.Patch = 0
		res.Bump = BumpMajor
		res.BigChange = true
	}

	if opts.Channel != ChannelNone {
		next.Prerelease = channelPrerelease(current.Prerelease, opts.Channel, res.BigChange)
		if opts.PrereleaseTag != "" && !hasChannelWord(opts.PrereleaseTag) {
			next.Prerelease += "-" + opts.PrereleaseTag
		}
	} else if next.Prerelease == "" && opts.PrereleaseTag != "" {
		next.Prerelease = opts.PrereleaseTag
	}

	if next.IsZero() {
		next.Patch = 1
	}

	next.BuildMetadata = opts.BuildMetadata
	next.VPrefix = opts.IncludePrefix

	res.Version = next
	return res, true
}

// channelPrerelease continues the counter of an existing prerelease on the
// same channel, or starts the channel over.
func channelPrerelease(existing string, ch Channel, bigChange bool) string {
	label := ch.String()
	if bigChange || !strings.HasPrefix(existing, label) {
		return label
	}

	if n, ok := prereleaseCounter(existing); ok {
		return fmt.Sprintf("%s.%d", label, n+1)
	}
	return label + ".1"
}

// prereleaseCounter extracts the numeric identifier after the last dot of a
// prerelease, e.g. 2 from "beta.2" or from "beta.2-nightly".
func prereleaseCounter(prerelease string) (int, bool) {
	i := strings.LastIndexByte(prerelease, '.')
	if i < 0 {
		return 0, false
	}

	suffix := prerelease[i+1:]
	if j := strings.IndexByte(suffix, '-'); j >= 0 {
		suffix = suffix[:j]
	}
	if suffix == "" || strings.TrimLeft(suffix, "0123456789") != "" {
		return 0, false
	}

	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}
