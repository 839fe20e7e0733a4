package workflow

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// gitRevParseHead resolves the current commit of the repository/worktree at
// dir. Used to read back a task worktree's HEAD as the opaque result commit
// once its agent has quiesced — the driver never inspects the commit's
// content, only its identity (§1 Non-goals: agent results are opaque commit
// identifiers).
func gitRevParseHead(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
