// Package merge implements ConflictResolver: merging a task worktree's
// branch onto a workflow's staging branch, reporting success, a conflict
// set, or a fatal repository error. It shells out to the git binary for the
// actual merge plumbing (matching the teacher's split between go-git for
// ref inspection and the CLI for operations go-git does not implement), and
// uses go-git only to resolve the worktree's current branch and HEAD.
//
// Merges are performed with `git merge-tree`, git's headless three-way
// merge plumbing: it computes the merge against the shared object store
// without touching worktreePath's index or working tree, so a conflict
// never leaves anything to abort.
package merge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/zen-cli/zen/zenerr"
)

// ConflictFile captures the three-way content of one unmerged path at the
// moment the merge halted.
type ConflictFile struct {
	Path   string
	Ours   []byte
	Theirs []byte
	Base   []byte
}

// ResultKind tags MergeResult's variant.
type ResultKind int

const (
	Success ResultKind = iota
	Conflicts
	Failed
)

func (k ResultKind) String() string {
	switch k {
	case Success:
		return "Success"
	case Conflicts:
		return "Conflicts"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MergeResult is the tagged-variant outcome of Resolver.Merge.
type MergeResult struct {
	Kind   ResultKind
	Commit string
	Files  []ConflictFile
	Err    error
}

// Resolver is stateless across calls; each Merge call operates on the
// worktree and staging branch passed in.
type Resolver struct{}

// New creates a Resolver.
func New() *Resolver { return &Resolver{} }

// Merge merges worktreePath's current branch onto stagingBranch in the
// repository that owns worktreePath, per §4.6.
func (r *Resolver) Merge(ctx context.Context, worktreePath, stagingBranch string) (MergeResult, error) {
	repo, err := gogit.PlainOpenWithOptions(worktreePath, &gogit.PlainOpenOptions{DetectDotGit: true, EnableDotGitCommonDir: true})
	if err != nil {
		return MergeResult{Kind: Failed, Err: err}, zenerr.New(zenerr.Repository, "merge.Merge", err)
	}

	head, err := repo.Head()
	if err != nil {
		return MergeResult{Kind: Failed, Err: err}, zenerr.New(zenerr.Repository, "merge.Merge", err)
	}
	branch := head.Name().Short()

	if !r.branchExists(ctx, worktreePath, stagingBranch) {
		// Creates stagingBranch at the task's own tip rather than its base
		// commit, so the task's commits are already on it and that tip is
		// the merge result. Later merges onto it go through merge-tree
		// below, which computes the true merge-base against whatever
		// stagingBranch points to.
		if _, err := r.git(ctx, worktreePath, "branch", stagingBranch, head.Hash().String()); err != nil {
			return MergeResult{Kind: Failed, Err: err}, zenerr.New(zenerr.Repository, "merge.Merge", err)
		}
		return MergeResult{Kind: Success, Commit: head.Hash().String()}, nil
	}

	out, mergeErr := r.git(ctx, worktreePath, "merge-tree", "--write-tree", "--name-only", "--no-messages", "-z", stagingBranch, branch)
	fields := strings.Split(strings.TrimRight(out, "\x00"), "\x00")
	treeOID := strings.TrimSpace(fields[0])

	if mergeErr == nil {
		msg := fmt.Sprintf("merge %s into %s", branch, stagingBranch)
		commit, err := r.git(ctx, worktreePath, "commit-tree", treeOID, "-p", stagingBranch, "-p", branch, "-m", msg)
		if err != nil {
			return MergeResult{Kind: Failed, Err: err}, zenerr.New(zenerr.MergeFatal, "merge.Merge", err)
		}
		commit = strings.TrimSpace(commit)
		if _, err := r.git(ctx, worktreePath, "update-ref", "refs/heads/"+stagingBranch, commit); err != nil {
			return MergeResult{Kind: Failed, Err: err}, zenerr.New(zenerr.MergeFatal, "merge.Merge", err)
		}
		return MergeResult{Kind: Success, Commit: commit}, nil
	}

	exitErr, ok := mergeErr.(*exec.ExitError)
	if !ok || exitErr.ExitCode() != 1 {
		return MergeResult{Kind: Failed, Err: mergeErr}, zenerr.New(zenerr.MergeFatal, "merge.Merge", mergeErr)
	}

	files, err := r.collectConflicts(ctx, worktreePath, stagingBranch, branch, fields[1:])
	if err != nil {
		return MergeResult{Kind: Failed, Err: err}, zenerr.New(zenerr.MergeFatal, "merge.Merge", err)
	}
	return MergeResult{Kind: Conflicts, Files: files}, nil
}

func (r *Resolver) branchExists(ctx context.Context, repoPath, branch string) bool {
	_, err := r.git(ctx, repoPath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// collectConflicts resolves, for each conflicted path named by merge-tree,
// the ours/theirs/base blob contents via `git show`, leaving an empty slice
// for a side that has no entry at that path.
func (r *Resolver) collectConflicts(ctx context.Context, repoPath, stagingBranch, branch string, paths []string) ([]ConflictFile, error) {
	base, err := r.git(ctx, repoPath, "merge-base", stagingBranch, branch)
	if err != nil {
		return nil, err
	}
	base = strings.TrimSpace(base)

	var files []ConflictFile
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		files = append(files, ConflictFile{
			Path:   path,
			Base:   r.showPath(ctx, repoPath, base, path),
			Ours:   r.showPath(ctx, repoPath, stagingBranch, path),
			Theirs: r.showPath(ctx, repoPath, branch, path),
		})
	}
	return files, nil
}

func (r *Resolver) showPath(ctx context.Context, repoPath, rev, path string) []byte {
	out, err := r.git(ctx, repoPath, "show", fmt.Sprintf("%s:%s", rev, path))
	if err != nil {
		return []byte{}
	}
	return []byte(out)
}

func (r *Resolver) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	return string(out), err
}
