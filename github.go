package autover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// GitHubAPI talks to the GitHub REST API directly, for runners without gh
type GitHubAPI struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	owner       string
	repo        string
	logger      *logrus.Logger
}

// NewGitHubAPI creates a client for repository "owner/name". rateLimit is the
// number of requests per second.
func NewGitHubAPI(token, repository string, rateLimit float64, logger *logrus.Logger) (*GitHubAPI, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("repository must be owner/name: %q", repository)
	}

	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if rateLimit <= 0 {
		rateLimit = 5
	}

	return &GitHubAPI{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		owner:       owner,
		repo:        name,
		logger:      loggerOrDiscard(logger),
	}, nil
}

// WithBaseURL points the client at a GitHub Enterprise (or test) server
func (g *GitHubAPI) WithBaseURL(baseURL string) (*GitHubAPI, error) {
	client, err := g.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("setting base url: %w", err)
	}
	c := *g
	c.client = client
	return &c, nil
}

// Current implements VersionSource
func (g *GitHubAPI) Current(ctx context.Context) (Version, error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return DefaultVersion(), fmt.Errorf("rate limiter: %w", err)
	}

	list, _, err := g.client.Repositories.ListReleases(ctx, g.owner, g.repo, &github.ListOptions{PerPage: 100})
	if err != nil {
		return DefaultVersion(), fmt.Errorf("listing releases: %w", err)
	}

	releases := make([]Release, 0, len(list))
	for _, r := range list {
		releases = append(releases, Release{
			TagName:     r.GetTagName(),
			Name:        r.GetName(),
			PublishedAt: r.GetPublishedAt().Time,
			IsDraft:     r.GetDraft(),
		})
	}
	g.logger.Debugf("current versions: %d releases", len(releases))

	return versionFromReleases(g.logger, releases), nil
}

// CreateRelease implements Publisher
func (g *GitHubAPI) CreateRelease(ctx context.Context, tag, commitish string, draft, prerelease bool) error {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	release := &github.RepositoryRelease{
		TagName:              github.String(tag),
		Draft:                github.Bool(draft),
		Prerelease:           github.Bool(!draft && prerelease),
		GenerateReleaseNotes: github.Bool(true),
	}
	if commitish != "" {
		release.TargetCommitish = github.String(commitish)
	}

	created, _, err := g.client.Repositories.CreateRelease(ctx, g.owner, g.repo, release)
	if err != nil {
		return fmt.Errorf("creating release %s: %w", tag, err)
	}
	if created == nil {
		return fmt.Errorf("creating release %s: %w", tag, ErrNoReleaseCreated)
	}

	logSuccess(g.logger, "New tag created: %s", created.GetHTMLURL())
	return nil
}

// MoveTag implements TagMover by creating or force-updating refs/tags/<name>
func (g *GitHubAPI) MoveTag(ctx context.Context, name, commitish string) error {
	if commitish == "" {
		commitish = "HEAD"
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	sha, _, err := g.client.Repositories.GetCommitSHA1(ctx, g.owner, g.repo, commitish, "")
	if err != nil {
		return fmt.Errorf("resolving %q: %w", commitish, err)
	}

	ref := &github.Reference{
		Ref:    github.String("refs/tags/" + name),
		Object: &github.GitObject{SHA: github.String(sha)},
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	_, _, err = g.client.Git.UpdateRef(ctx, g.owner, g.repo, ref, true)
	if err == nil {
		g.logger.Debugf("tag %s moved to %s", name, sha)
		return nil
	}
	if !isUnprocessableOrNotFound(err) {
		return fmt.Errorf("updating tag %s: %w", name, err)
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if _, _, err := g.client.Git.CreateRef(ctx, g.owner, g.repo, ref); err != nil {
		return fmt.Errorf("creating tag %s: %w", name, err)
	}
	g.logger.Debugf("tag %s created at %s", name, sha)
	return nil
}

// isUnprocessableOrNotFound matches the responses GitHub gives when updating a
// ref that does not exist yet.
func isUnprocessableOrNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	switch ghErr.Response.StatusCode {
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
