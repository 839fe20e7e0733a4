package merge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultKindStrings(t *testing.T) {
	cases := map[ResultKind]string{
		Success:   "Success",
		Conflicts: "Conflicts",
		Failed:    "Failed",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

// Merge reads the branch to merge from whatever is currently checked out
// (repo.Head()), the same way a task's worktree stays on its own branch for
// the whole of its life. These tests leave HEAD on the task branch they set
// up instead of checking back out to "main", so the merge actually exercises
// divergent histories rather than merging a branch with itself.

func TestMergeCleanApply(t *testing.T) {
	repoPath := setupTestRepo(t)
	writeAndCommit(t, repoPath, "README.md", "base\n", "initial")

	// staging branches off main before task-a diverges, so the later merge
	// has two genuinely different histories to reconcile.
	runGit(t, repoPath, "branch", "staging")

	runGit(t, repoPath, "checkout", "-b", "task-a")
	writeAndCommit(t, repoPath, "a.txt", "from task a\n", "task a change")

	r := New()
	result, err := r.Merge(context.Background(), repoPath, "staging")
	require.NoError(t, err)
	assert.Equal(t, Success, result.Kind)
	assert.NotEmpty(t, result.Commit)

	content := gitOutput(t, repoPath, "show", "staging:a.txt")
	assert.Equal(t, "from task a\n", content)
}

func TestMergeConflictsCollectsAllThreeSides(t *testing.T) {
	repoPath := setupTestRepo(t)
	writeAndCommit(t, repoPath, "shared.txt", "base content\n", "initial")

	runGit(t, repoPath, "branch", "staging")
	runGit(t, repoPath, "checkout", "staging")
	writeAndCommit(t, repoPath, "shared.txt", "staging edit\n", "staging change")

	runGit(t, repoPath, "checkout", "main")
	runGit(t, repoPath, "checkout", "-b", "task-b")
	writeAndCommit(t, repoPath, "shared.txt", "task b edit\n", "task change")

	r := New()
	result, err := r.Merge(context.Background(), repoPath, "staging")
	require.NoError(t, err)
	require.Equal(t, Conflicts, result.Kind)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "shared.txt", result.Files[0].Path)
	assert.Equal(t, "staging edit\n", string(result.Files[0].Ours))
	assert.Equal(t, "task b edit\n", string(result.Files[0].Theirs))
	assert.Equal(t, "base content\n", string(result.Files[0].Base))
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.MkdirAll(repoPath, 0755))
	runGit(t, repoPath, "init", "-b", "main")
	runGit(t, repoPath, "config", "user.email", "test@example.com")
	runGit(t, repoPath, "config", "user.name", "Test User")
	return repoPath
}

func writeAndCommit(t *testing.T, repoPath, name, content, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, name), []byte(content), 0644))
	runGit(t, repoPath, "add", name)
	runGit(t, repoPath, "commit", "-m", message)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}
