package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"

	"github.com/autover/autover"
)

// Version will be set by build process
var Version = "dev"

type CLI struct {
	TargetCommit string `arg:"" help:"Commit the changes are measured from"`
	SourceCommit string `help:"Commit the changes are measured to; releases are created here (default: HEAD)"`

	PatchLimit float64 `default:"10" help:"Top % of changes that increases the patch version vX.Y.(Z+1)"`
	MinorLimit float64 `default:"75" help:"Top % of changes that increases the minor version vX.(Y+1).0"`

	Directory      string   `default:"." help:"Directory to check the changes in"`
	Exclude        []string `help:"Files, paths or patterns to exclude"`
	IncludeOnly    []string `help:"Files, paths or patterns to include only"`
	ImportantFiles []string `help:"Files whose changes weigh more (reserved)"`
	Importance     float64  `default:"1.1" help:"Weight of important files (reserved)"`

	RemoveVPrefix bool   `help:"Render the version without the 'v' prefix"`
	Alpha         bool   `help:"This is an alpha version"`
	Beta          bool   `help:"This is a beta version"`
	RC            bool   `name:"rc" help:"This is a release candidate version"`
	PrereleaseTag string `help:"Prerelease tag appended to the version"`
	BuildMetadata string `help:"Build metadata appended to the version"`

	CreateTag       bool `help:"Create a release and tag for the new version"`
	CreateLatestTag bool `help:"Point the 'latest' tag at the new release"`
	CreateMajorTag  bool `help:"Point the major version tag (e.g. v2) at the new release"`
	Draft           bool `help:"Create the release as a draft"`
	Prerelease      bool `help:"Create the release as a prerelease"`

	Provider   string `default:"gh" enum:"gh,github,git" help:"Where releases are read from and created: gh CLI, GitHub API or local git tags"`
	DiffEngine string `default:"git" enum:"git,go-git" help:"Compute the diff with the git CLI or in-process with go-git"`
	TagPattern string `help:"Regex local tags must match (git provider)"`
	Remote     string `default:"origin" help:"Remote floating tags are pushed to (gh and git providers)"`

	Repository   string `env:"GITHUB_REPOSITORY" help:"owner/name of the repository (github provider)"`
	Token        string `env:"GITHUB_TOKEN" help:"GitHub token (github provider)"`
	GitHubAPIURL string `name:"github-api-url" env:"GITHUB_API_URL" help:"GitHub API base URL (github provider)"`
	GitHubOutput string `name:"github-output" env:"GITHUB_OUTPUT" help:"File step outputs are appended to"`

	Format  string           `short:"f" default:"text" enum:"text,json,yaml" help:"Report format"`
	Timeout time.Duration    `default:"5m" help:"Give up after this long"`
	Debug   bool             `help:"Print debug logs"`
	Config  kong.ConfigFlag  `help:"YAML configuration file"`
	Version kong.VersionFlag `help:"Show version information"`
}

func main() {
	if err := autover.LoadEnvFile(envOr("AUTOVER_ENV_FILE", ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	kong.Parse(&cli,
		kong.Name("autover"),
		kong.Description("Calculates the next version based on a percentage of changes"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(autover.YAMLConfig, autover.DefaultConfigFiles...),
		kong.DefaultEnvars("AUTOVER"),
		kong.Vars{
			"version": Version,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Run(ctx, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run(ctx context.Context, stdout, stderr io.Writer) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	logger := autover.NewLogger(stderr, c.Debug)

	runner, err := c.runner(logger, stdout)
	if err != nil {
		return err
	}

	_, err = runner.Run(ctx, c.config())
	return err
}

func (c *CLI) config() autover.Config {
	return autover.Config{
		TargetCommit:    c.TargetCommit,
		SourceCommit:    c.SourceCommit,
		Directory:       c.Directory,
		Exclude:         c.Exclude,
		Include:         c.IncludeOnly,
		ImportantFiles:  c.ImportantFiles,
		Importance:      c.Importance,
		Thresholds:      autover.Thresholds{PatchLimit: c.PatchLimit, MinorLimit: c.MinorLimit},
		RemoveVPrefix:   c.RemoveVPrefix,
		Alpha:           c.Alpha,
		Beta:            c.Beta,
		RC:              c.RC,
		PrereleaseTag:   c.PrereleaseTag,
		BuildMetadata:   c.BuildMetadata,
		Draft:           c.Draft,
		Prerelease:      c.Prerelease,
		CreateTag:       c.CreateTag,
		CreateLatestTag: c.CreateLatestTag,
		CreateMajorTag:  c.CreateMajorTag,
		GitHubOutput:    c.GitHubOutput,
		Format:          c.Format,
	}
}

func (c *CLI) runner(logger *logrus.Logger, stdout io.Writer) (*autover.Runner, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	dir, err := relativeDirectory(cwd, c.Directory)
	if err != nil {
		return nil, err
	}
	c.Directory = dir

	// A missing repository only matters to the collaborators that need one
	repo, err := autover.OpenRepository(cwd)
	if err != nil {
		logger.WithError(err).Debug("no git repository found")
		repo = nil
	}

	runner := &autover.Runner{
		FS:         osfs.New(cwd),
		Repository: repo,
		Exec:       autover.ExecCommand,
		Logger:     logger,
		Stdout:     stdout,
	}

	switch c.DiffEngine {
	case "go-git":
		if repo == nil {
			return nil, fmt.Errorf("diff engine go-git: %w", autover.ErrNoRepository)
		}
		runner.Differ = &autover.GoGitDiffer{Repo: repo}
	default:
		runner.Differ = autover.NewGitDiffer(cwd, logger)
	}

	tagMover := func() autover.TagMover {
		if repo == nil {
			return nil
		}
		return &autover.GitTagMover{Repository: repo, Remote: c.Remote, Run: autover.ExecCommand, Logger: logger}
	}

	switch c.Provider {
	case "github":
		api, err := c.githubAPI(logger)
		if err != nil {
			return nil, err
		}
		runner.Source = api
		runner.Publisher = api
		runner.Tags = api
	case "git":
		if repo == nil {
			return nil, fmt.Errorf("provider git: %w", autover.ErrNoRepository)
		}
		runner.Source = &autover.GitTags{
			Repository: repo,
			Revision:   c.SourceCommit,
			TagPattern: c.TagPattern,
			Logger:     logger,
		}
		runner.Publisher = autover.NewGHCLI(cwd, logger)
		runner.Tags = tagMover()
	default:
		gh := autover.NewGHCLI(cwd, logger)
		runner.Source = gh
		runner.Publisher = gh
		runner.Tags = tagMover()
	}

	return runner, nil
}

func (c *CLI) githubAPI(logger *logrus.Logger) (*autover.GitHubAPI, error) {
	api, err := autover.NewGitHubAPI(c.Token, c.Repository, 5, logger)
	if err != nil {
		return nil, err
	}
	if c.GitHubAPIURL == "" || strings.TrimSuffix(c.GitHubAPIURL, "/") == "https://api.github.com" {
		return api, nil
	}
	return api.WithBaseURL(c.GitHubAPIURL)
}

// relativeDirectory expresses dir relative to cwd, which the file walk is rooted at
func relativeDirectory(cwd, dir string) (string, error) {
	if dir == "" {
		return ".", nil
	}
	if !filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}

	rel, err := filepath.Rel(cwd, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("directory %s must be inside %s", dir, cwd)
	}
	return rel, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
