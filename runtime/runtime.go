// Package runtime implements the default AgentRuntime: one tmux session per
// agent, attached via a PTY, with trust-screen handling and completion
// detection driven by hashing captured pane content. It is the concrete
// capability agentpool.Pool delegates process control to (see
// agentpool.Runtime); nothing outside this package shells out to tmux.
package runtime

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/zen-cli/zen/agentpool"
	"github.com/zen-cli/zen/dag"
	"github.com/zen-cli/zen/zenlog"
)

const sessionPrefix = "zen_"

func sessionName(agentID agentpool.AgentID) string {
	return sessionPrefix + strings.ReplaceAll(agentID.String(), "-", "")
}

// session is the per-agent bookkeeping kept by Runtime: the attached PTY and
// a rolling hash of the last captured pane content, used to tell an agent's
// output has gone quiet without keeping the whole scrollback in memory.
type session struct {
	name     string
	ptmx     *os.File
	lastHash []byte
}

// Runtime is the default, tmux-backed implementation of agentpool.Runtime.
type Runtime struct {
	command         string
	trustPrompts    bool
	trustScreenWait time.Duration

	mu       sync.Mutex
	sessions map[agentpool.AgentID]*session
}

// New creates a Runtime that launches command (e.g. "claude") in a fresh
// tmux session per agent. When trustPrompts is true, Spawn auto-confirms the
// "do you trust the files in this folder?" screen agent binaries show on
// first run in an unfamiliar directory.
func New(command string, trustPrompts bool) *Runtime {
	return &Runtime{
		command:         command,
		trustPrompts:    trustPrompts,
		trustScreenWait: 30 * time.Second,
		sessions:        make(map[agentpool.AgentID]*session),
	}
}

// Spawn starts a detached tmux session running the configured agent binary
// in workspace, then sends initialPrompt once the program is past any trust
// screen.
func (r *Runtime) Spawn(ctx context.Context, agentID agentpool.AgentID, taskID dag.TaskID, workspace, skill, initialPrompt string) error {
	name := sessionName(agentID)

	startCmd := exec.CommandContext(ctx, "tmux", "new-session", "-d", "-s", name, "-c", workspace, r.command)
	launcher, err := pty.Start(startCmd)
	if err != nil {
		return fmt.Errorf("start tmux session %s: %w", name, err)
	}
	launcher.Close() // the detached session owns its own pty; this one only launched it

	if err := r.waitForSession(ctx, name); err != nil {
		_ = r.killSession(name)
		return err
	}

	attached, err := pty.Start(exec.Command("tmux", "attach-session", "-t", name))
	if err != nil {
		_ = r.killSession(name)
		return fmt.Errorf("attach tmux session %s: %w", name, err)
	}

	r.mu.Lock()
	r.sessions[agentID] = &session{name: name, ptmx: attached}
	r.mu.Unlock()

	if r.trustPrompts {
		r.confirmTrustScreen(name, attached)
	}

	if initialPrompt != "" {
		if _, err := attached.Write([]byte(initialPrompt + "\r")); err != nil {
			zenlog.WarningLog.Printf("send initial prompt to %s: %v", name, err)
		}
	}

	return nil
}

func (r *Runtime) waitForSession(ctx context.Context, name string) error {
	deadline := time.Now().Add(5 * time.Second)
	sleep := 5 * time.Millisecond
	for time.Now().Before(deadline) {
		if r.sessionExists(name) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		if sleep < 50*time.Millisecond {
			sleep *= 2
		}
	}
	return fmt.Errorf("timed out waiting for tmux session %s to start", name)
}

func (r *Runtime) sessionExists(name string) bool {
	return exec.Command("tmux", "has-session", "-t="+name).Run() == nil
}

// confirmTrustScreen polls captured pane content for the trust prompt and
// sends Enter once seen, mirroring the agent binary's first-run UX.
func (r *Runtime) confirmTrustScreen(name string, ptmx *os.File) {
	const prompt = "Do you trust the files in this folder?"
	deadline := time.Now().Add(r.trustScreenWait)
	sleep := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		time.Sleep(sleep)
		content, err := r.capturePane(name)
		if err == nil && strings.Contains(content, prompt) {
			if _, err := ptmx.Write([]byte{0x0D}); err != nil {
				zenlog.ErrorLog.Printf("confirm trust screen for %s: %v", name, err)
			}
			return
		}
		if sleep < time.Second {
			sleep = time.Duration(float64(sleep) * 1.2)
		}
	}
}

// Terminate kills the tmux session backing agentID. Idempotent: an unknown
// or already-gone session is not an error.
func (r *Runtime) Terminate(ctx context.Context, agentID agentpool.AgentID) error {
	r.mu.Lock()
	s, ok := r.sessions[agentID]
	delete(r.sessions, agentID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if s.ptmx != nil {
		_ = s.ptmx.Close()
	}
	return r.killSession(s.name)
}

func (r *Runtime) killSession(name string) error {
	if err := exec.Command("tmux", "kill-session", "-t", name).Run(); err != nil {
		if !r.sessionExists(name) {
			return nil
		}
		return fmt.Errorf("kill tmux session %s: %w", name, err)
	}
	return nil
}

// OutputSnapshot captures the current tmux pane content for agentID.
func (r *Runtime) OutputSnapshot(ctx context.Context, agentID agentpool.AgentID) (string, error) {
	r.mu.Lock()
	s, ok := r.sessions[agentID]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no session for agent %s", agentID)
	}
	return r.capturePane(s.name)
}

func (r *Runtime) capturePane(name string) (string, error) {
	out, err := exec.Command("tmux", "capture-pane", "-p", "-e", "-J", "-t", name).Output()
	if err != nil {
		return "", fmt.Errorf("capture pane %s: %w", name, err)
	}
	return string(out), nil
}

// HasQuiesced hashes the agent's current pane content and compares it
// against the hash from the last call, reporting whether output has
// stopped changing. WorkflowDriver uses this alongside the health
// monitor's idle-threshold check as a cheaper, in-band completion signal.
func (r *Runtime) HasQuiesced(agentID agentpool.AgentID) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[agentID]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("no session for agent %s", agentID)
	}

	content, err := r.capturePane(s.name)
	if err != nil {
		return false, err
	}

	h := sha256.Sum256([]byte(content))
	newHash := h[:]

	r.mu.Lock()
	unchanged := bytes.Equal(newHash, s.lastHash)
	s.lastHash = newHash
	r.mu.Unlock()

	return unchanged, nil
}
