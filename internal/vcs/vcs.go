// Package vcs reads the state of the repository a recipe lives in.
package vcs

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
)

// ErrDirty is returned by Revision when the worktree has uncommitted
// changes.
var ErrDirty = errors.New("worktree is not clean")

// VCS defines the interface for version control queries.
type VCS interface {
	// Head returns the commit hash checked out in the repository
	// containing dir.
	Head(dir string) (string, error)

	// IsClean reports whether the worktree containing dir has no
	// uncommitted or untracked changes.
	IsClean(dir string) (bool, error)
}

// gitVCS implements VCS on go-git, without a git executable.
type gitVCS struct {
	detectDotGit bool
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithExactRoot requires dir to be the repository root instead of
// searching its parents for the .git directory.
func WithExactRoot() GitOption {
	return func(g *gitVCS) {
		g.detectDotGit = false
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{detectDotGit: true}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) open(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: g.detectDotGit})
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", dir, err)
	}
	return repo, nil
}

func (g *gitVCS) Head(dir string) (string, error) {
	repo, err := g.open(dir)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (g *gitVCS) IsClean(dir string) (bool, error) {
	repo, err := g.open(dir)
	if err != nil {
		return false, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	return status.IsClean(), nil
}

// Revision returns the HEAD commit of the repository containing dir,
// refusing dirty worktrees: the commit would not describe the files.
func Revision(v VCS, dir string) (string, error) {
	clean, err := v.IsClean(dir)
	if err != nil {
		return "", err
	}
	if !clean {
		return "", fmt.Errorf("%s: %w", dir, ErrDirty)
	}
	return v.Head(dir)
}
