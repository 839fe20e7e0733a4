package store

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-cli/zen/zenerr"
)

type workflowDoc struct {
	Name  string `json:"name"`
	Phase string `json:"phase"`
}

func TestCreateReadUpdateDeleteRef(t *testing.T) {
	s := openTestStore(t)

	doc := workflowDoc{Name: "w1", Phase: "Planning"}
	require.NoError(t, s.CreateRef("workflows/w1", doc))

	var out workflowDoc
	ok, err := s.ReadRef("workflows/w1", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, out)

	doc.Phase = "TaskGeneration"
	require.NoError(t, s.UpdateRef("workflows/w1", doc))

	ok, err = s.ReadRef("workflows/w1", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "TaskGeneration", out.Phase)

	require.NoError(t, s.DeleteRef("workflows/w1"))
	ok, err = s.ReadRef("workflows/w1", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeleteRef("workflows/w1")) // idempotent
}

func TestCreateRefRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRef("tasks/t1", workflowDoc{Name: "t1"}))
	err := s.CreateRef("tasks/t1", workflowDoc{Name: "t1-again"})
	require.Error(t, err)
	assert.Equal(t, zenerr.RefExists, zenerr.KindOf(err))
}

func TestUpdateRefMissingFails(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateRef("tasks/missing", workflowDoc{})
	require.Error(t, err)
	assert.Equal(t, zenerr.RefNotFound, zenerr.KindOf(err))
}

func TestListRefsFiltersByPrefix(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRef("workflows/w1", workflowDoc{Name: "w1"}))
	require.NoError(t, s.CreateRef("workflows/w2", workflowDoc{Name: "w2"}))
	require.NoError(t, s.CreateRef("tasks/t1", workflowDoc{Name: "t1"}))

	names, err := s.ListRefs("workflows/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"workflows/w1", "workflows/w2"}, names)
}

func TestMigrateLegacyStateIsOneShot(t *testing.T) {
	repoPath := setupTestRepo(t)
	s := mustOpen(t, repoPath)

	legacyPath := filepath.Join(repoPath, "state.json")
	require.NoError(t, os.WriteFile(legacyPath, []byte(`{"w1":{"name":"w1","phase":"Planning"}}`), 0644))

	require.NoError(t, s.MigrateLegacyState(legacyPath, "workflows"))

	var out workflowDoc
	ok, err := s.ReadRef("workflows/w1", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "w1", out.Name)

	require.NoError(t, s.DeleteRef("workflows/w1"))
	require.NoError(t, s.MigrateLegacyState(legacyPath, "workflows")) // already migrated, no-op
	ok, _ = s.ReadRef("workflows/w1", &out)
	assert.False(t, ok)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	return mustOpen(t, setupTestRepo(t))
}

func mustOpen(t *testing.T, repoPath string) *Store {
	t.Helper()
	s, err := Open(repoPath)
	require.NoError(t, err)
	return s
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.MkdirAll(repoPath, 0755))
	runGit(t, repoPath, "init", "-b", "main")
	runGit(t, repoPath, "config", "user.email", "test@example.com")
	runGit(t, repoPath, "config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("hi\n"), 0644))
	runGit(t, repoPath, "add", "README.md")
	runGit(t, repoPath, "commit", "-m", "initial")
	return repoPath
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}
