package autover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"
)

// DefaultExcludes are always appended to the user's exclude patterns
var DefaultExcludes = []string{"__pycache__", ".venv", ".git*"}

// skippedDirs are never descended into while listing files
var skippedDirs = map[string]bool{
	".git":        true,
	".venv":       true,
	"__pycache__": true,
}

var (
	trailingDirWildcard = regexp.MustCompile(`/\*$`)
	trailingSlash       = regexp.MustCompile(`/$`)
)

// Matcher tests paths against include/exclude patterns. A pattern matches
// anywhere in the path, case-insensitively; "*" and "**" match any run of
// characters, a trailing "/" anchors at the end of the path and a trailing
// "/*" matches everything below a directory.
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles patterns
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		re, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	p := strings.ToLower(pattern)
	p = trailingDirWildcard.ReplaceAllString(p, "*")
	p = trailingSlash.ReplaceAllString(p, "$$")
	p = strings.ReplaceAll(p, ".", `\.`)
	p = strings.ReplaceAll(p, "**", "*")
	p = strings.ReplaceAll(p, "*", ".*")
	return regexp.Compile(p)
}

// Empty reports whether the matcher has no patterns
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Match reports whether any pattern matches path
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, re := range m.patterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// FileFilter decides which files take part in the line count and diff
type FileFilter struct {
	Exclude *Matcher
	Include *Matcher
}

// NewFileFilter compiles exclude and include patterns into a FileFilter
func NewFileFilter(exclude, include []string) (*FileFilter, error) {
	ex, err := NewMatcher(exclude)
	if err != nil {
		return nil, fmt.Errorf("compiling excludes: %w", err)
	}
	in, err := NewMatcher(include)
	if err != nil {
		return nil, fmt.Errorf("compiling includes: %w", err)
	}
	return &FileFilter{Exclude: ex, Include: in}, nil
}

// Allows reports whether path passes the filter. An empty include list allows everything.
func (f *FileFilter) Allows(path string) bool {
	if f == nil {
		return true
	}
	if !f.Exclude.Empty() && f.Exclude.Match(path) {
		return false
	}
	if !f.Include.Empty() && !f.Include.Match(path) {
		return false
	}
	return true
}

// ListFiles returns the regular files below dir that pass filter
func ListFiles(fs billy.Filesystem, dir string, filter *FileFilter) ([]string, error) {
	var files []string
	err := util.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
		if info.IsDir() {
			if path != dir && skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if filter.Allows(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// CountLines returns the total number of newlines across files
func CountLines(ctx context.Context, fs billy.Filesystem, files []string) (int, error) {
	counts := make([]int, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := countFileLines(fs, name)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func countFileLines(fs billy.Filesystem, name string) (int, error) {
	f, err := fs.Open(name)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	lines := 0
	for {
		n, err := f.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", name, err)
		}
	}
}
