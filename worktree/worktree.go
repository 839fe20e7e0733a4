// Package worktree implements the default WorktreeProvisioner: one isolated
// working tree per task, checked out at a branch derived from the task's
// short id, rooted at the workflow's recorded base commit. go-git is used
// for branch/ref inspection; actual worktree plumbing is shelled out to the
// git binary, since go-git has no worktree API.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/zen-cli/zen/dag"
	"github.com/zen-cli/zen/zenerr"
)

// branchPrefix namespaces every task branch so they're easy to recognize
// and bulk-prune.
const branchPrefix = "zen/"

// Provisioner creates and tears down per-task worktrees under a configured
// root directory inside a single source repository.
type Provisioner struct {
	repoPath string
	rootDir  string
}

// New creates a Provisioner rooted at repoPath (the source repository) and
// rootDir (where per-task worktrees are checked out, e.g. config.WorktreeDir).
func New(repoPath, rootDir string) *Provisioner {
	return &Provisioner{repoPath: repoPath, rootDir: rootDir}
}

// Handle describes a provisioned worktree.
type Handle struct {
	Path       string
	Branch     string
	BaseCommit string
}

// Create checks out a fresh worktree for taskID at baseCommit, on a branch
// named zen/<task-short-id>. If the worktree already exists it is removed
// and recreated, guaranteeing a clean slate (matching the teacher's
// "always start from a clean worktree" behavior).
func (p *Provisioner) Create(ctx context.Context, taskID dag.TaskID, baseCommit string) (string, error) {
	handle, err := p.createHandle(ctx, taskID, baseCommit)
	if err != nil {
		return "", err
	}
	return handle.Path, nil
}

func (p *Provisioner) createHandle(ctx context.Context, taskID dag.TaskID, baseCommit string) (Handle, error) {
	if err := os.MkdirAll(p.rootDir, 0755); err != nil {
		return Handle{}, zenerr.New(zenerr.Io, "worktree.Create", err)
	}

	branch := branchPrefix + taskID.Short()
	path := filepath.Join(p.rootDir, taskID.Short())

	repo, err := git.PlainOpen(p.repoPath)
	if err != nil {
		return Handle{}, zenerr.New(zenerr.Repository, "worktree.Create", err)
	}

	// Always start clean: drop any stale worktree and branch from a prior
	// attempt at this task id before recreating them.
	_, _ = p.git(ctx, p.repoPath, "worktree", "remove", "-f", path)
	if err := p.removeBranch(repo, branch); err != nil {
		return Handle{}, zenerr.New(zenerr.Repository, "worktree.Create", err)
	}

	if baseCommit == "" {
		out, err := p.git(ctx, p.repoPath, "rev-parse", "HEAD")
		if err != nil {
			return Handle{}, zenerr.New(zenerr.Repository, "worktree.Create", fmt.Errorf("resolve HEAD: %w", err))
		}
		baseCommit = strings.TrimSpace(out)
	}

	if _, err := p.git(ctx, p.repoPath, "worktree", "add", "-b", branch, path, baseCommit); err != nil {
		return Handle{}, zenerr.New(zenerr.Repository, "worktree.Create", fmt.Errorf("add worktree: %w", err))
	}

	return Handle{Path: path, Branch: branch, BaseCommit: baseCommit}, nil
}

// Remove deletes the worktree for taskID but leaves its branch intact, so a
// completed task's commits stay reachable for the merge phase.
func (p *Provisioner) Remove(ctx context.Context, taskID dag.TaskID) error {
	path := filepath.Join(p.rootDir, taskID.Short())
	if _, err := p.git(ctx, p.repoPath, "worktree", "remove", "-f", path); err != nil {
		return zenerr.New(zenerr.Repository, "worktree.Remove", err)
	}
	return nil
}

// Cleanup removes both the worktree and its branch for taskID, and prunes
// stale administrative state. Used once a task's commits have been merged
// into staging and are no longer needed under their own branch.
func (p *Provisioner) Cleanup(ctx context.Context, taskID dag.TaskID) error {
	path := filepath.Join(p.rootDir, taskID.Short())
	branch := branchPrefix + taskID.Short()

	var errs []string
	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := p.git(ctx, p.repoPath, "worktree", "remove", "-f", path); err != nil {
			errs = append(errs, err.Error())
		}
	}

	repo, err := git.PlainOpen(p.repoPath)
	if err != nil {
		errs = append(errs, err.Error())
	} else if err := p.removeBranch(repo, branch); err != nil {
		errs = append(errs, err.Error())
	}

	if _, err := p.git(ctx, p.repoPath, "worktree", "prune"); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return zenerr.New(zenerr.Repository, "worktree.Cleanup", fmt.Errorf("%s", strings.Join(errs, "; ")))
	}
	return nil
}

func (p *Provisioner) removeBranch(repo *git.Repository, branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(ref, false); err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil
		}
		return err
	}
	return repo.Storer.RemoveReference(ref)
}

func (p *Provisioner) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}
