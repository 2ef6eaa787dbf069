package autover

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		matches bool
	}{
		{"*.md", "docs/readme.md", true},
		{"*.md", "docs/readme.mdx", true},
		{"*.md", "docs/readme_md", false},
		{"docs/", "src/docs", true},
		{"docs/", "src/docs/file.go", false},
		{"vendor/*", "vendor/pkg/a.go", true},
		{"vendor/*", "src/main.go", false},
		{"**/testdata", "pkg/testdata/x.json", true},
		{"README", "docs/readme.md", true},
		{".git*", ".gitignore", true},
		{".git*", "src/git.go", false},
		{"__pycache__", "pkg/__pycache__/mod.pyc", true},
	}

	for _, test := range tests {
		t.Run(test.pattern+" "+test.path, func(t *testing.T) {
			m, err := NewMatcher([]string{test.pattern})
			require.NoError(t, err)
			require.Equal(t, test.matches, m.Match(test.path))
		})
	}
}

func TestMatcherEmpty(t *testing.T) {
	m, err := NewMatcher(nil)
	require.NoError(t, err)
	require.True(t, m.Empty())
	require.False(t, m.Match("anything"))

	var nilMatcher *Matcher
	require.True(t, nilMatcher.Empty())
}

func TestNewMatcherInvalid(t *testing.T) {
	_, err := NewMatcher([]string{"a(b"})
	require.Error(t, err)
}

func TestFileFilter(t *testing.T) {
	filter, err := NewFileFilter([]string{"*_test.go"}, []string{"*.go"})
	require.NoError(t, err)

	require.True(t, filter.Allows("pkg/main.go"))
	require.False(t, filter.Allows("pkg/main_test.go"))
	require.False(t, filter.Allows("README.md"))

	var none *FileFilter
	require.True(t, none.Allows("anything"))
}

func TestListFilesAndCountLines(t *testing.T) {
	fs := memfs.New()
	files := map[string]string{
		"/project/main.go":           lines(10),
		"/project/pkg/util.go":       lines(5),
		"/project/pkg/util_test.go":  lines(7),
		"/project/.gitignore":        lines(2),
		"/project/.git/HEAD":         lines(1),
		"/project/.venv/lib/site.py": lines(100),
		"/project/__pycache__/a.pyc": lines(50),
		"/project/docs/notes.md":     "no trailing newline",
		"/outside/ignored.go":        lines(3),
	}
	for name, content := range files {
		require.NoError(t, writeFile(fs, name, content))
	}

	filter, err := NewFileFilter(mergeExcludes([]string{"*_test.go"}), nil)
	require.NoError(t, err)

	listed, err := ListFiles(fs, "/project", filter)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"/project/main.go",
		"/project/pkg/util.go",
		"/project/docs/notes.md",
	}, listed)

	total, err := CountLines(context.Background(), fs, listed)
	require.NoError(t, err)
	require.Equal(t, 15, total)
}

func TestListFilesMissingDirectory(t *testing.T) {
	_, err := ListFiles(memfs.New(), "/missing", nil)
	require.Error(t, err)
}

func TestCountLinesCancelled(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, writeFile(fs, "/a.txt", lines(3)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CountLines(ctx, fs, []string{"/a.txt"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCountLinesMissingFile(t *testing.T) {
	_, err := CountLines(context.Background(), memfs.New(), []string{"/nope.txt"})
	require.Error(t, err)
}
