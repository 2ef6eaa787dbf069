package autover

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Now(),
}

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate() (*git.Repository, error) {
	return git.Init(memory.NewStorage(), memfs.New())
}

// testCommit writes files into the worktree and commits them
func testCommit(repo *git.Repository, files map[string]string, msg string) (plumbing.Hash, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	for name, content := range files {
		if err := writeFile(workTree.Filesystem, name, content); err != nil {
			return plumbing.ZeroHash, err
		}
		if _, err := workTree.Add(name); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	return workTree.Commit(msg, &git.CommitOptions{Author: testSignature})
}

// testRemove deletes a file from the worktree and commits the removal
func testRemove(repo *git.Repository, name, msg string) (plumbing.Hash, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := workTree.Remove(name); err != nil {
		return plumbing.ZeroHash, err
	}
	return workTree.Commit(msg, &git.CommitOptions{Author: testSignature})
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}

// lines returns n newline-terminated lines
func lines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}
