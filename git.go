// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0.

package autover

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/sirupsen/logrus"
)

// ErrNoRepository is returned by git-backed collaborators used without a repository
var ErrNoRepository = errors.New("git repository is required")

// OpenRepository opens a Git repository at the specified path
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// GitTags reads the current version from the nearest semver tag reachable
// from Revision.
type GitTags struct {
	Repository *git.Repository

	// Revision to start from (default: "HEAD")
	Revision string

	// TagPattern is a regex that tag names must match, e.g. "^v"
	TagPattern string

	Logger *logrus.Logger
}

func (g *GitTags) log() *logrus.Logger {
	return loggerOrDiscard(g.Logger)
}

// Current implements VersionSource
func (g *GitTags) Current(ctx context.Context) (Version, error) {
	if g.Repository == nil {
		return DefaultVersion(), ErrNoRepository
	}

	rev := g.Revision
	if rev == "" {
		rev = "HEAD"
	}

	var tagFilter func(string) bool
	if g.TagPattern != "" {
		re, err := regexp.Compile(g.TagPattern)
		if err != nil {
			return DefaultVersion(), fmt.Errorf("invalid tag pattern: %w", err)
		}
		tagFilter = re.MatchString
	}

	start, err := resolveCommit(g.Repository, rev)
	if err != nil {
		return DefaultVersion(), err
	}

	tags, err := versionTagsByCommit(g.Repository, tagFilter)
	if err != nil {
		return DefaultVersion(), fmt.Errorf("listing tags: %w", err)
	}

	found, err := mostRecentTag(ctx, start, tags)
	if err != nil {
		return DefaultVersion(), fmt.Errorf("finding recent tag: %w", err)
	}
	if found == nil {
		g.log().Debug("no version tag reachable, using default")
		return DefaultVersion(), nil
	}

	g.log().WithField("tag", found.tag).Debug("found version tag")
	return found.version, nil
}

type versionTag struct {
	tag     string
	version Version
}

// versionTagsByCommit maps commit hashes to the highest version tag pointing at them
func versionTagsByCommit(repo *git.Repository, tagFilter func(string) bool) (map[plumbing.Hash]versionTag, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, err
	}

	byCommit := make(map[plumbing.Hash]versionTag)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		name := ref.Name().Short()
		if tagFilter != nil && !tagFilter(name) {
			return nil
		}

		v, err := ParseVersion(stripModuleTagPrefixes(name))
		if err != nil {
			return nil
		}

		target := ref.Hash()
		obj, err := repo.TagObject(ref.Hash())
		switch err {
		case nil:
			// Annotated tag
			target = obj.Target
		case plumbing.ErrObjectNotFound:
			// Lightweight tag
		default:
			return err
		}

		if cur, ok := byCommit[target]; !ok || v.Compare(cur.version) > 0 {
			byCommit[target] = versionTag{tag: name, version: v}
		}
		return nil
	})
	return byCommit, err
}

func stripModuleTagPrefixes(tag string) string {
	_, versionComponent := path.Split(tag)
	return versionComponent
}

func mostRecentTag(ctx context.Context, start *object.Commit, tags map[plumbing.Hash]versionTag) (*versionTag, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	var found *versionTag
	walker := object.NewCommitPreorderIter(start, nil, nil)
	err := walker.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t, ok := tags[c.Hash]; ok {
			found = &t
			return storer.ErrStop
		}
		return nil
	})
	return found, err
}

// GitTagMover points lightweight tags at a commit in the local repository and
// force-pushes them to Remote.
type GitTagMover struct {
	Repository *git.Repository
	Remote     string
	Run        CommandRunner
	Logger     *logrus.Logger
}

func (m *GitTagMover) log() *logrus.Logger {
	return loggerOrDiscard(m.Logger)
}

// MoveTag implements TagMover
func (m *GitTagMover) MoveTag(ctx context.Context, name, commitish string) error {
	if m.Repository == nil {
		return ErrNoRepository
	}
	if commitish == "" {
		commitish = "HEAD"
	}

	commit, err := resolveCommit(m.Repository, commitish)
	if err != nil {
		return err
	}

	if err := m.Repository.DeleteTag(name); err != nil && !errors.Is(err, git.ErrTagNotFound) {
		return fmt.Errorf("deleting tag %s: %w", name, err)
	}
	if _, err := m.Repository.CreateTag(name, commit.Hash, nil); err != nil {
		return fmt.Errorf("creating tag %s: %w", name, err)
	}
	m.log().WithField("commit", commit.Hash.String()[:8]).Debugf("tag %s moved locally", name)

	if m.Run == nil {
		return nil
	}
	remote := m.Remote
	if remote == "" {
		remote = "origin"
	}
	if _, err := m.Run(ctx, worktreeRoot(m.Repository), "git", "push", "--force", remote, "refs/tags/"+name); err != nil {
		return fmt.Errorf("pushing tag %s: %w", name, err)
	}
	return nil
}

// WorktreeIsDirty reports uncommitted changes in the worktree
func WorktreeIsDirty(ctx context.Context, repo *git.Repository, run CommandRunner) (bool, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}

	// Fast path for filesystem storage
	if _, ok := repo.Storer.(*filesystem.Storage); ok && run != nil {
		return checkDirtyWithGitCommand(ctx, run, workTree.Filesystem.Root())
	}

	status, err := workTree.Status()
	if err != nil {
		return false, fmt.Errorf("getting git status: %w", err)
	}

	return !status.IsClean(), nil
}

func checkDirtyWithGitCommand(ctx context.Context, run CommandRunner, repoPath string) (bool, error) {
	// Refresh index first
	if _, err := run(ctx, repoPath, "git", "update-index", "-q", "--refresh"); err != nil {
		// If update-index fails, assume dirty
		return true, nil
	}

	out, err := run(ctx, repoPath, "git", "diff-files", "--name-status", "--ignore-space-at-eol")
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return true, nil
		}
		return false, err
	}

	return strings.TrimSpace(out) != "", nil
}

func worktreeRoot(repo *git.Repository) string {
	wt, err := repo.Worktree()
	if err != nil {
		return "."
	}
	return wt.Filesystem.Root()
}
