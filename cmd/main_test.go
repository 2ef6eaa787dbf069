package main

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/autover/autover"
)

func parseCLI(t *testing.T, args ...string) (*CLI, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("autover"),
		kong.DefaultEnvars("AUTOVER"),
		kong.Vars{"version": Version},
	)
	require.NoError(t, err)
	_, err = parser.Parse(args)
	return &cli, err
}

func TestCLIDefaults(t *testing.T) {
	cli, err := parseCLI(t, "v1.0.0")
	require.NoError(t, err)

	require.Equal(t, "v1.0.0", cli.TargetCommit)
	require.Equal(t, 10.0, cli.PatchLimit)
	require.Equal(t, 75.0, cli.MinorLimit)
	require.Equal(t, ".", cli.Directory)
	require.Equal(t, 1.1, cli.Importance)
	require.Equal(t, "gh", cli.Provider)
	require.Equal(t, "git", cli.DiffEngine)
	require.Equal(t, "origin", cli.Remote)
	require.Equal(t, "text", cli.Format)
	require.Equal(t, 5*time.Minute, cli.Timeout)
}

func TestCLIFlags(t *testing.T) {
	cli, err := parseCLI(t, "main",
		"--source-commit", "feature",
		"--patch-limit", "5",
		"--minor-limit", "50",
		"--exclude", "docs/",
		"--exclude", "*.md",
		"--include-only", "*.go",
		"--rc",
		"--prerelease-tag", "nightly",
		"--build-metadata", "sha.1",
		"--remove-v-prefix",
		"--create-tag",
		"--create-major-tag",
		"--provider", "github",
		"--format", "json",
	)
	require.NoError(t, err)

	cfg := cli.config()
	require.Equal(t, "main", cfg.TargetCommit)
	require.Equal(t, "feature", cfg.SourceCommit)
	require.Equal(t, autover.Thresholds{PatchLimit: 5, MinorLimit: 50}, cfg.Thresholds)
	require.Equal(t, []string{"docs/", "*.md"}, cfg.Exclude)
	require.Equal(t, []string{"*.go"}, cfg.Include)
	require.True(t, cfg.RC)
	require.True(t, cfg.CreateTag)
	require.True(t, cfg.CreateMajorTag)
	require.Equal(t, "json", cfg.Format)
	require.Equal(t, autover.BumpOptions{
		Channel:       autover.ChannelRC,
		PrereleaseTag: "nightly",
		BuildMetadata: "sha.1",
	}, cfg.BumpOptions())
}

func TestCLIEnv(t *testing.T) {
	t.Setenv("AUTOVER_PATCH_LIMIT", "20")
	t.Setenv("AUTOVER_ALPHA", "true")
	t.Setenv("GITHUB_REPOSITORY", "acme/widget")
	t.Setenv("GITHUB_OUTPUT", "/tmp/github_output")

	cli, err := parseCLI(t, "v1.0.0")
	require.NoError(t, err)
	require.Equal(t, 20.0, cli.PatchLimit)
	require.True(t, cli.Alpha)
	require.Equal(t, "acme/widget", cli.Repository)
	require.Equal(t, "/tmp/github_output", cli.GitHubOutput)
}

func TestCLIErrors(t *testing.T) {
	_, err := parseCLI(t)
	require.Error(t, err, "target commit is required")

	_, err = parseCLI(t, "v1.0.0", "--provider", "gitlab")
	require.Error(t, err)

	_, err = parseCLI(t, "v1.0.0", "--format", "toml")
	require.Error(t, err)

	_, err = parseCLI(t, "v1.0.0", "--patch-limit", "ten")
	require.Error(t, err)
}

func TestRelativeDirectory(t *testing.T) {
	cwd := filepath.FromSlash("/work/repo")

	tests := []struct {
		dir      string
		expected string
		wantErr  bool
	}{
		{dir: "", expected: "."},
		{dir: ".", expected: "."},
		{dir: "src/", expected: "src"},
		{dir: filepath.FromSlash("/work/repo"), expected: "."},
		{dir: filepath.FromSlash("/work/repo/src/pkg"), expected: filepath.FromSlash("src/pkg")},
		{dir: filepath.FromSlash("/work/other"), wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.dir, func(t *testing.T) {
			dir, err := relativeDirectory(cwd, test.dir)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expected, dir)
		})
	}
}

func TestRunnerGitHubProvider(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cli := &CLI{
		Directory:    ".",
		Provider:     "github",
		DiffEngine:   "git",
		Repository:   "acme/widget",
		GitHubAPIURL: "https://ghe.example.com/",
	}
	runner, err := cli.runner(logger, io.Discard)
	require.NoError(t, err)

	require.IsType(t, &autover.GitHubAPI{}, runner.Source)
	require.IsType(t, &autover.GitHubAPI{}, runner.Publisher)
	require.IsType(t, &autover.GitHubAPI{}, runner.Tags)
	require.IsType(t, &autover.GitDiffer{}, runner.Differ)
}

func TestRunnerGitHubProviderBadRepository(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cli := &CLI{Directory: ".", Provider: "github", DiffEngine: "git", Repository: "widget"}
	_, err := cli.runner(logger, io.Discard)
	require.Error(t, err)
}

func TestRunnerGHProvider(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cli := &CLI{Directory: ".", Provider: "gh", DiffEngine: "git"}
	runner, err := cli.runner(logger, io.Discard)
	require.NoError(t, err)

	require.IsType(t, &autover.GHCLI{}, runner.Source)
	require.IsType(t, &autover.GHCLI{}, runner.Publisher)
}
