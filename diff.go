package autover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"
)

// DiffRequest selects what to compare. Target is the older reference; an
// empty Source means HEAD.
type DiffRequest struct {
	Source    string
	Target    string
	Directory string
	Exclude   []string
	Include   []string
}

// Differ summarizes the changes between two references
type Differ interface {
	Diff(ctx context.Context, req DiffRequest) (DiffSummary, error)
}

// CommandRunner runs an external command in dir and returns its stdout
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (string, error)

// CommandError is returned by ExecCommand when a command fails
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecCommand is the CommandRunner backed by os/exec
func ExecCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", &CommandError{
			Command: strings.Join(append([]string{name}, args...), " "),
			Stderr:  stderr.String(),
			Err:     err,
		}
	}
	return string(out), nil
}

var (
	shortstatPattern = regexp.MustCompile(
		`(\d+)\s+files?\s+changed(?:,?\s+(\d+)\s+insertions?\(\+\))?(?:,?\s+(\d+)\s+deletions?\(-\))?`)
	createModePattern = regexp.MustCompile(`(?m)^\s+create\s+mode`)
	deleteModePattern = regexp.MustCompile(`(?m)^\s+delete\s+mode`)
)

// ParseShortstat reads the output of `git diff --shortstat --summary`
func ParseShortstat(out string) DiffSummary {
	summary := DiffSummary{
		FilesAdded:   len(createModePattern.FindAllStringIndex(out, -1)),
		FilesRemoved: len(deleteModePattern.FindAllStringIndex(out, -1)),
	}

	m := shortstatPattern.FindStringSubmatch(out)
	if m == nil {
		return summary
	}
	summary.FilesChanged = atoiOrZero(m[1])
	summary.Insertions = atoiOrZero(m[2])
	summary.Deletions = atoiOrZero(m[3])
	return summary
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// GitDiffer shells out to git
type GitDiffer struct {
	// Dir is the working directory git runs in
	Dir    string
	Run    CommandRunner
	Logger *logrus.Logger
}

// NewGitDiffer returns a GitDiffer running git through os/exec
func NewGitDiffer(dir string, logger *logrus.Logger) *GitDiffer {
	return &GitDiffer{Dir: dir, Run: ExecCommand, Logger: logger}
}

func (d *GitDiffer) log() *logrus.Logger {
	return loggerOrDiscard(d.Logger)
}

func (d *GitDiffer) run() CommandRunner {
	if d.Run == nil {
		return ExecCommand
	}
	return d.Run
}

// Diff implements Differ
func (d *GitDiffer) Diff(ctx context.Context, req DiffRequest) (DiffSummary, error) {
	args := append([]string{"diff", "--shortstat", "--summary"}, diffArgs(req)...)
	d.log().Debugf("git diff command: git %s", strings.Join(args, " "))

	out, err := d.run()(ctx, d.Dir, "git", args...)
	if err != nil {
		return DiffSummary{}, fmt.Errorf("running git diff: %w", err)
	}
	d.log().Debugf("git diff result: %s", strings.TrimSpace(out))

	if d.log().IsLevelEnabled(logrus.DebugLevel) {
		d.logPatch(ctx, req)
	}

	return ParseShortstat(out), nil
}

// logPatch logs the per-file breakdown of the full patch
func (d *GitDiffer) logPatch(ctx context.Context, req DiffRequest) {
	args := append([]string{"diff"}, diffArgs(req)...)
	out, err := d.run()(ctx, d.Dir, "git", args...)
	if err != nil {
		d.log().WithError(err).Debug("could not fetch full patch")
		return
	}

	files, _, err := gitdiff.Parse(strings.NewReader(out))
	if err != nil {
		d.log().WithError(err).Debug("could not parse full patch")
		return
	}

	for _, f := range files {
		var added, deleted int64
		for _, frag := range f.TextFragments {
			added += frag.LinesAdded
			deleted += frag.LinesDeleted
		}
		name := f.NewName
		if f.IsDelete {
			name = f.OldName
		}
		d.log().WithFields(logrus.Fields{
			"new":     f.IsNew,
			"deleted": f.IsDelete,
			"binary":  f.IsBinary,
		}).Debugf("%s +%d -%d", name, added, deleted)
	}
}

// diffArgs builds the revision range and pathspecs for git diff
func diffArgs(req DiffRequest) []string {
	var args []string
	if rng := revisionRange(req.Source, req.Target); rng != "" {
		args = append(args, rng)
	}
	args = append(args, "--")

	dir := req.Directory
	if dir == "" {
		dir = "."
	}
	if len(req.Include) == 0 {
		args = append(args, dir)
	}
	for _, in := range req.Include {
		args = append(args, path.Join(dir, "*", in))
	}
	for _, ex := range req.Exclude {
		args = append(args, ":^"+strings.ReplaceAll(ex, "_", "*"))
	}
	return args
}

func revisionRange(source, target string) string {
	if target == "" {
		return source
	}
	return target + ".." + source
}

// GoGitDiffer diffs two commits in-process with go-git
type GoGitDiffer struct {
	Repo *git.Repository
}

// Diff implements Differ
func (d *GoGitDiffer) Diff(ctx context.Context, req DiffRequest) (DiffSummary, error) {
	if d.Repo == nil {
		return DiffSummary{}, ErrNoRepository
	}

	source := req.Source
	if source == "" {
		source = "HEAD"
	}
	if req.Target == "" {
		return DiffSummary{}, errors.New("target revision is required")
	}

	from, err := resolveCommit(d.Repo, req.Target)
	if err != nil {
		return DiffSummary{}, err
	}
	to, err := resolveCommit(d.Repo, source)
	if err != nil {
		return DiffSummary{}, err
	}

	patch, err := from.PatchContext(ctx, to)
	if err != nil {
		return DiffSummary{}, fmt.Errorf("computing patch: %w", err)
	}

	filter, err := NewFileFilter(req.Exclude, req.Include)
	if err != nil {
		return DiffSummary{}, err
	}

	var summary DiffSummary
	for _, fp := range patch.FilePatches() {
		fromFile, toFile := fp.Files()
		name := ""
		switch {
		case toFile != nil:
			name = toFile.Path()
		case fromFile != nil:
			name = fromFile.Path()
		}
		if !inDirectory(name, req.Directory) || !filter.Allows(name) {
			continue
		}

		// Renames have both sides and count as one changed file, as in git
		summary.FilesChanged++
		if fromFile == nil {
			summary.FilesAdded++
		}
		if toFile == nil {
			summary.FilesRemoved++
		}

		for _, chunk := range fp.Chunks() {
			n := chunkLines(chunk.Content())
			switch chunk.Type() {
			case fdiff.Add:
				summary.Insertions += n
			case fdiff.Delete:
				summary.Deletions += n
			}
		}
	}
	return summary, nil
}

func resolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("getting commit object: %w", err)
	}
	return commit, nil
}

func chunkLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if s[len(s)-1] != '\n' {
		n++
	}
	return n
}

func inDirectory(name, dir string) bool {
	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" {
		return true
	}
	return name == dir || strings.HasPrefix(name, dir+"/")
}
