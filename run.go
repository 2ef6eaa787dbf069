package autover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"
)

// Config is one invocation of the version calculation
type Config struct {
	// TargetCommit is the reference the change is measured from
	TargetCommit string
	// SourceCommit is the reference the change is measured to. Empty means
	// HEAD. New releases are created at this commit.
	SourceCommit string

	Directory string
	Exclude   []string
	Include   []string

	// ImportantFiles and Importance are accepted for compatibility but do not
	// weigh into the calculation yet.
	ImportantFiles []string
	Importance     float64

	Thresholds    Thresholds
	RemoveVPrefix bool
	Alpha         bool
	Beta          bool
	RC            bool
	PrereleaseTag string
	BuildMetadata string

	Draft           bool
	Prerelease      bool
	CreateTag       bool
	CreateLatestTag bool
	CreateMajorTag  bool

	// GitHubOutput is the file step outputs are appended to
	GitHubOutput string
	// Format of the report written to Stdout: text, json or yaml
	Format string
}

// BumpOptions derives the engine options from the configuration
func (c Config) BumpOptions() BumpOptions {
	return BumpOptions{
		IncludePrefix: !c.RemoveVPrefix,
		Channel:       ChannelFromFlags(c.Alpha, c.Beta, c.RC),
		PrereleaseTag: c.PrereleaseTag,
		BuildMetadata: c.BuildMetadata,
	}
}

// ErrMissingCollaborator is returned by Runner.Run when a required field is nil
var ErrMissingCollaborator = errors.New("runner is missing a required collaborator")

// Runner wires the collaborators of a run together
type Runner struct {
	// FS is the tree lines are counted in; Config.Directory is relative to it.
	// FS, Differ and Source are required.
	FS        billy.Filesystem
	Differ    Differ
	Source    VersionSource
	Publisher Publisher
	Tags      TagMover

	// Repository and Exec are optional; with a repository a dirty worktree is reported
	Repository *git.Repository
	Exec       CommandRunner

	Logger *logrus.Logger
	Stdout io.Writer
}

// Run computes the next version. A nil report with a nil error means no
// change was detected and nothing was published.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	log := loggerOrDiscard(r.Logger)
	log.Info("Automatic SemVer calculation started")

	dir := cfg.Directory
	if dir == "" {
		dir = "."
	}
	excludes := mergeExcludes(cfg.Exclude)
	log.WithFields(logrus.Fields{
		"directory": dir,
		"exclude":   excludes,
		"include":   cfg.Include,
	}).Debug("configuration")
	if len(cfg.ImportantFiles) > 0 {
		log.WithField("importance", cfg.Importance).Debugf("important files are not weighted yet: %v", cfg.ImportantFiles)
	}
	if cfg.Thresholds.PatchLimit > cfg.Thresholds.MinorLimit {
		log.Warnf("patch limit %v is above minor limit %v", cfg.Thresholds.PatchLimit, cfg.Thresholds.MinorLimit)
	}

	log.Info("Listing files and counting lines")
	filter, err := NewFileFilter(excludes, cfg.Include)
	if err != nil {
		return nil, err
	}
	files, err := ListFiles(r.FS, dir, filter)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	log.Debugf("%d files", len(files))

	totalLines, err := CountLines(ctx, r.FS, files)
	if err != nil {
		return nil, fmt.Errorf("counting lines: %w", err)
	}
	log.Debugf("Current commit total lines: %d", totalLines)

	log.Info("Calculating changes")
	r.reportDirtyWorktree(ctx, cfg, log)
	diff, err := r.Differ.Diff(ctx, DiffRequest{
		Source:    cfg.SourceCommit,
		Target:    cfg.TargetCommit,
		Directory: dir,
		Exclude:   excludes,
		Include:   cfg.Include,
	})
	if err != nil {
		return nil, fmt.Errorf("calculating changes: %w", err)
	}

	stats := NewChangeStats(totalLines, diff)
	log.WithFields(logrus.Fields{
		"files_changed": stats.FilesChanged,
		"insertions":    stats.Insertions,
		"deletions":     stats.Deletions,
		"insertions%":   stats.InsertionPercent,
		"deletions%":    stats.DeletionPercent,
	}).Debugf("Target commit total lines (difference): %d", stats.TotalLines)

	log.Info("Retrieving current version")
	current, err := r.Source.Current(ctx)
	if err != nil {
		log.WithError(err).Error("could not retrieve current version, using default")
		current = DefaultVersion()
	}
	log.Infof("Current version: %s", current)

	log.Info("Calculating new version")
	res, ok := ComputeNextVersion(current, stats, cfg.Thresholds, cfg.BumpOptions())
	if !ok {
		log.Warn("No changes detected, exiting")
		return nil, nil
	}
	logTier(log, cfg, res)

	next := res.Version
	if _, err := ParseVersion(next.String()); err != nil {
		log.Warnf("%s is not a valid semantic version", next)
	}

	report := &Report{
		Current:    current.String(),
		Next:       next.String(),
		Result:     res,
		Stats:      stats,
		Thresholds: cfg.Thresholds,
	}

	if cfg.GitHubOutput != "" {
		if err := AppendGitHubOutput(cfg.GitHubOutput, Outputs(next, stats)); err != nil {
			return nil, err
		}
	}
	if r.Stdout != nil {
		if err := WriteReport(r.Stdout, cfg.Format, report); err != nil {
			return nil, fmt.Errorf("writing report: %w", err)
		}
	}

	logSuccess(log, "New version: %s", next)
	log.Infof("%s -> %s", current, next)

	if cfg.CreateTag {
		report.Tagged = r.publish(ctx, cfg, report, log)
	}
	return report, nil
}

// publish creates the release and moves the floating tags. Failures are
// logged only: the computed version has already been emitted.
func (r *Runner) publish(ctx context.Context, cfg Config, report *Report, log *logrus.Logger) bool {
	if report.Next == report.Current {
		log.Warn("No version change, skipping creation")
		return false
	}
	if r.Publisher == nil {
		log.Error("no release publisher configured")
		return false
	}

	log.Infof("Creating version tag: %s", report.Next)
	if err := r.Publisher.CreateRelease(ctx, report.Next, cfg.SourceCommit, cfg.Draft, cfg.Prerelease); err != nil {
		log.WithError(err).Error("Failed to create new tag version")
		return false
	}

	var floating []string
	if cfg.CreateLatestTag {
		floating = append(floating, "latest")
	}
	if cfg.CreateMajorTag {
		floating = append(floating, MajorTag(report.Result.Version))
	}
	if len(floating) == 0 {
		return true
	}

	if cfg.Draft || report.Result.Version.Prerelease != "" {
		log.Warnf("not moving %v to a draft or prerelease", floating)
		return true
	}
	if r.Tags == nil {
		log.Errorf("no tag mover configured, cannot move %v", floating)
		return true
	}
	for _, name := range floating {
		if err := r.Tags.MoveTag(ctx, name, cfg.SourceCommit); err != nil {
			log.WithError(err).Errorf("Failed to move tag %s", name)
			continue
		}
		logSuccess(log, "Tag %s now points at %s", name, report.Next)
	}
	return true
}

func (r *Runner) validate() error {
	switch {
	case r.FS == nil:
		return fmt.Errorf("%w: filesystem", ErrMissingCollaborator)
	case r.Differ == nil:
		return fmt.Errorf("%w: differ", ErrMissingCollaborator)
	case r.Source == nil:
		return fmt.Errorf("%w: version source", ErrMissingCollaborator)
	}
	return nil
}

func (r *Runner) reportDirtyWorktree(ctx context.Context, cfg Config, log *logrus.Logger) {
	if cfg.SourceCommit != "" || r.Repository == nil {
		return
	}
	dirty, err := WorktreeIsDirty(ctx, r.Repository, r.Exec)
	if err != nil {
		log.WithError(err).Debug("could not check worktree status")
		return
	}
	if dirty {
		log.Warn("Uncommitted changes are counted in the total lines but not in the diff")
	}
}

func logTier(log *logrus.Logger, cfg Config, res Result) {
	limits := cfg.Thresholds
	if ch := cfg.BumpOptions().Channel; ch != ChannelNone {
		log.Infof("%s version", ch)
	}
	switch res.Bump {
	case BumpPatch:
		log.Infof("Changes (%v%%) under %v%%, increasing patch version", res.MaxChange, limits.PatchLimit)
	case BumpMinor:
		log.Infof("Changes (%v%%) over %v%% and under %v%%, increasing minor version", res.MaxChange, limits.PatchLimit, limits.MinorLimit)
	case BumpMajor:
		log.Infof("Changes (%v%%) over %v%%, increasing major version", res.MaxChange, limits.MinorLimit)
	}
}

// MajorTag is the floating tag that follows the latest release of a major version
func MajorTag(v Version) string {
	if v.VPrefix {
		return fmt.Sprintf("v%d", v.Major)
	}
	return fmt.Sprintf("%d", v.Major)
}

func mergeExcludes(exclude []string) []string {
	merged := slices.Clone(exclude)
	for _, d := range DefaultExcludes {
		if !slices.Contains(merged, d) {
			merged = append(merged, d)
		}
	}
	return merged
}
