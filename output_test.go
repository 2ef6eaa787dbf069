package autover

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testReport() *Report {
	next := Version{Major: 1, Minor: 3, Prerelease: "rc.1", BuildMetadata: "b7", VPrefix: true}
	stats := ChangeStats{
		DiffSummary:      DiffSummary{FilesChanged: 3, FilesAdded: 1, Insertions: 25, Deletions: 5},
		TotalLines:       200,
		InsertionPercent: 12.5,
		DeletionPercent:  2.5,
	}
	return &Report{
		Current:    "v1.2.3",
		Next:       next.String(),
		Result:     Result{Version: next, Bump: BumpMinor, MaxChange: 12.5, BigChange: true},
		Stats:      stats,
		Thresholds: DefaultThresholds(),
	}
}

const expectedOutputs = `version_str=v1.3.0-rc.1+b7
major=1
minor=3
patch=0
prerelease=rc.1
build_metadata=b7
files_changed=3
files_added=1
files_removed=0
insertions=25
deletions=5
max_percentage=12.5
min_percentage=2.5
avg_percentage=7.5
cumulative_percentage=15.0
`

func TestWriteOutputs(t *testing.T) {
	r := testReport()

	var buf bytes.Buffer
	require.NoError(t, WriteOutputs(&buf, Outputs(r.Result.Version, r.Stats)))
	require.Equal(t, expectedOutputs, buf.String())
}

func TestWriteOutputsRejectsMultiline(t *testing.T) {
	var buf bytes.Buffer
	err := WriteOutputs(&buf, []Output{
		{Key: "version_str", Value: "v1.0.0"},
		{Key: "prerelease", Value: "a\nb"},
	})
	require.ErrorContains(t, err, "output prerelease")
	require.Empty(t, buf.String())
}

func TestOutputsPrereleaseTagWithoutChannel(t *testing.T) {
	stats := ChangeStats{DiffSummary: DiffSummary{Insertions: 5}, TotalLines: 100, InsertionPercent: 5}
	res, ok := ComputeNextVersion(Version{Major: 1, Minor: 2, Patch: 3, VPrefix: true}, stats, DefaultThresholds(),
		BumpOptions{IncludePrefix: true, PrereleaseTag: "nightly"})
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, WriteOutputs(&buf, Outputs(res.Version, stats)))
	require.Contains(t, buf.String(), "version_str=v1.2.4-nightly\n")
	require.Contains(t, buf.String(), "prerelease=nightly\n")
}

func TestAppendGitHubOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(path, []byte("existing=1\n"), 0o644))

	r := testReport()
	require.NoError(t, AppendGitHubOutput(path, Outputs(r.Result.Version, r.Stats)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "existing=1\n"+expectedOutputs, string(data))
}

func TestAppendGitHubOutputInvalidValueLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(path, []byte("existing=1\n"), 0o644))

	err := AppendGitHubOutput(path, []Output{
		{Key: "version_str", Value: "v1.0.0"},
		{Key: "build_metadata", Value: "a\r\nb"},
	})
	require.ErrorContains(t, err, "output build_metadata")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "existing=1\n", string(data))
}

func TestAppendGitHubOutputBadPath(t *testing.T) {
	err := AppendGitHubOutput(filepath.Join(t.TempDir(), "missing", "out"), nil)
	require.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	r := testReport()

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteReport(&buf, "", r))
		require.Equal(t, expectedOutputs, buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteReport(&buf, "json", r))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Equal(t, "v1.3.0-rc.1+b7", decoded["next"])

		result := decoded["result"].(map[string]any)
		require.Equal(t, "minor", result["bump"])
		require.Equal(t, true, result["big_change"])

		stats := decoded["stats"].(map[string]any)
		require.Equal(t, float64(3), stats["files_changed"])
		require.Equal(t, 12.5, stats["insertion_percent"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteReport(&buf, "yaml", r))
		require.True(t, strings.HasPrefix(buf.String(), "current: v1.2.3\n"))

		var decoded struct {
			Next   string `yaml:"next"`
			Result struct {
				Bump string `yaml:"bump"`
			} `yaml:"result"`
			Stats struct {
				FilesChanged int     `yaml:"files_changed"`
				TotalLines   int     `yaml:"total_lines"`
				Deletion     float64 `yaml:"deletion_percent"`
			} `yaml:"stats"`
		}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		require.Equal(t, "v1.3.0-rc.1+b7", decoded.Next)
		require.Equal(t, "minor", decoded.Result.Bump)
		require.Equal(t, 3, decoded.Stats.FilesChanged)
		require.Equal(t, 200, decoded.Stats.TotalLines)
		require.Equal(t, 2.5, decoded.Stats.Deletion)
	})

	t.Run("unknown", func(t *testing.T) {
		require.Error(t, WriteReport(&bytes.Buffer{}, "toml", r))
	})
}
