package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHead_NotARepo(t *testing.T) {
	head, err := ReadHead(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestReadHead_NoCommits(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	head, err := ReadHead(dir)
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestReadHead(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.ts"), []byte("export {};\n"), 0644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("src/a.ts")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	// Lookup from a subdirectory finds the enclosing repository
	head, err := ReadHead(filepath.Join(dir, "src"))
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, hash.String(), head.CommitSHA)
	assert.NotEmpty(t, head.Branch)
}

func TestHead_ShortSHA(t *testing.T) {
	assert.Equal(t, "0123456", (&Head{CommitSHA: "0123456789abcdef"}).ShortSHA())
	assert.Equal(t, "abc", (&Head{CommitSHA: "abc"}).ShortSHA())
}
