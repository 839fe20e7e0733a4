package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-cli/zen/dag"
)

func TestCreateChecksOutIsolatedWorktree(t *testing.T) {
	repoPath := setupTestRepo(t)
	root := filepath.Join(t.TempDir(), "worktrees")
	p := New(repoPath, root)
	taskID := dag.NewTaskID()

	path, err := p.Create(context.Background(), taskID, "")
	require.NoError(t, err)
	assert.DirExists(t, path)
	assert.Equal(t, filepath.Join(root, taskID.Short()), path)

	out := runGit(t, repoPath, "branch", "--list", branchPrefix+taskID.Short())
	assert.Contains(t, out, branchPrefix+taskID.Short())
}

func TestCreateIsIdempotentOnReRun(t *testing.T) {
	repoPath := setupTestRepo(t)
	root := filepath.Join(t.TempDir(), "worktrees")
	p := New(repoPath, root)
	taskID := dag.NewTaskID()

	_, err := p.Create(context.Background(), taskID, "")
	require.NoError(t, err)
	path, err := p.Create(context.Background(), taskID, "")
	require.NoError(t, err)
	assert.DirExists(t, path)
}

func TestCleanupRemovesWorktreeAndBranch(t *testing.T) {
	repoPath := setupTestRepo(t)
	root := filepath.Join(t.TempDir(), "worktrees")
	p := New(repoPath, root)
	taskID := dag.NewTaskID()

	path, err := p.Create(context.Background(), taskID, "")
	require.NoError(t, err)

	require.NoError(t, p.Cleanup(context.Background(), taskID))
	assert.NoDirExists(t, path)

	out := runGit(t, repoPath, "branch", "--list", branchPrefix+taskID.Short())
	assert.NotContains(t, out, branchPrefix+taskID.Short())
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.MkdirAll(repoPath, 0755))
	runGit(t, repoPath, "init", "-b", "main")
	runGit(t, repoPath, "config", "user.email", "test@example.com")
	runGit(t, repoPath, "config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("hello\n"), 0644))
	runGit(t, repoPath, "add", "README.md")
	runGit(t, repoPath, "commit", "-m", "initial")
	return repoPath
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}
