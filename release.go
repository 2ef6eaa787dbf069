package autover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// VersionSource provides the version of the latest published release
type VersionSource interface {
	Current(ctx context.Context) (Version, error)
}

// Publisher creates a release (and its tag) at commitish
type Publisher interface {
	CreateRelease(ctx context.Context, tag, commitish string, draft, prerelease bool) error
}

// TagMover points a floating tag such as "latest" or "v2" at commitish
type TagMover interface {
	MoveTag(ctx context.Context, name, commitish string) error
}

// ErrNoReleaseCreated is returned when the hosting service accepted the
// request but reported nothing back.
var ErrNoReleaseCreated = errors.New("no release was created")

// Release is the part of a hosted release the version lookup needs
type Release struct {
	TagName     string    `json:"tagName"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"publishedAt"`
	IsLatest    bool      `json:"isLatest"`
	IsDraft     bool      `json:"isDraft"`
}

// LatestRelease returns the most recently published non-draft release. The
// first one listed wins a tie.
func LatestRelease(releases []Release) (Release, bool) {
	var latest Release
	found := false
	for _, r := range releases {
		if r.IsDraft {
			continue
		}
		if !found || r.PublishedAt.After(latest.PublishedAt) {
			latest = r
			found = true
		}
	}
	return latest, found
}

// versionFromReleases parses the tag of the latest release, defaulting when
// there is none or its tag is not a version.
func versionFromReleases(log logrus.FieldLogger, releases []Release) Version {
	latest, ok := LatestRelease(releases)
	if !ok {
		log.Debug("no published release found, using default")
		return DefaultVersion()
	}

	v, err := ParseVersion(latest.TagName)
	if err != nil {
		log.WithError(err).Warn("latest release tag is not a version, using default")
		return DefaultVersion()
	}
	return v
}

// GHCLI talks to the release host through the gh CLI
type GHCLI struct {
	// Dir is the working directory gh runs in
	Dir    string
	Limit  int
	Run    CommandRunner
	Logger *logrus.Logger
}

// NewGHCLI returns a GHCLI running gh through os/exec
func NewGHCLI(dir string, logger *logrus.Logger) *GHCLI {
	return &GHCLI{Dir: dir, Limit: 100, Run: ExecCommand, Logger: logger}
}

func (g *GHCLI) log() *logrus.Logger {
	return loggerOrDiscard(g.Logger)
}

func (g *GHCLI) run() CommandRunner {
	if g.Run == nil {
		return ExecCommand
	}
	return g.Run
}

// Current implements VersionSource
func (g *GHCLI) Current(ctx context.Context) (Version, error) {
	limit := g.Limit
	if limit <= 0 {
		limit = 100
	}

	out, err := g.run()(ctx, g.Dir, "gh", "release", "list",
		"--limit", fmt.Sprint(limit),
		"--json", "publishedAt,name,tagName,isLatest,isDraft")
	if err != nil {
		return DefaultVersion(), fmt.Errorf("listing releases: %w", err)
	}
	g.log().Debugf("current versions: %s", strings.TrimSpace(out))

	if strings.TrimSpace(out) == "" {
		return DefaultVersion(), nil
	}

	var releases []Release
	if err := json.Unmarshal([]byte(out), &releases); err != nil {
		return DefaultVersion(), fmt.Errorf("decoding release list: %w", err)
	}

	return versionFromReleases(g.log(), releases), nil
}

// CreateRelease implements Publisher. A draft release is never also marked
// as prerelease.
func (g *GHCLI) CreateRelease(ctx context.Context, tag, commitish string, draft, prerelease bool) error {
	args := []string{"release", "create", tag, "--generate-notes"}
	if commitish != "" {
		args = append(args, "--target", commitish)
	}
	if draft {
		args = append(args, "--draft")
	} else if prerelease {
		args = append(args, "--prerelease")
	}
	g.log().Debugf("create version tag command: gh %s", strings.Join(args, " "))

	out, err := g.run()(ctx, g.Dir, "gh", args...)
	if err != nil {
		return fmt.Errorf("creating release %s: %w", tag, err)
	}
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("creating release %s: %w", tag, ErrNoReleaseCreated)
	}

	logSuccess(g.log(), "New tag created: %s", strings.TrimSpace(out))
	return nil
}
