// Package vcs reads version-control metadata of an analyzed project
package vcs

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Head identifies the commit a project was analyzed at
type Head struct {
	CommitSHA string `json:"commitSha"`
	Branch    string `json:"branch,omitempty"` // empty for a detached HEAD
}

// ReadHead returns the HEAD of the git repository containing path, searching
// parent directories for .git. It returns nil without error when path is not
// inside a repository or the repository has no commits yet.
func ReadHead(path string) (*Head, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repo: %w", err)
	}

	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	head := &Head{CommitSHA: ref.Hash().String()}
	if ref.Name().IsBranch() {
		head.Branch = ref.Name().Short()
	}
	return head, nil
}

// ShortSHA returns the abbreviated commit hash
func (h *Head) ShortSHA() string {
	if len(h.CommitSHA) > 7 {
		return h.CommitSHA[:7]
	}
	return h.CommitSHA
}
