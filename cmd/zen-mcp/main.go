// Command zen-mcp exposes a running zen orchestration's workflow state as
// MCP tools, mirroring the teacher's cmd/mcp-server/main.go: a tiny binary
// agents launch as an MCP server, reading the same on-disk state the CLI
// writes rather than talking to a live process.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/zen-cli/zen/mcp"
	"github.com/zen-cli/zen/store"
)

func main() {
	stateDir := os.Getenv("ZEN_STATE_DIR")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "zen-mcp: failed to get home directory: %v\n", err)
			os.Exit(1)
		}
		stateDir = filepath.Join(homeDir, ".zen")
	}

	if err := os.MkdirAll(stateDir, 0700); err == nil {
		logPath := filepath.Join(stateDir, "mcp-server.log")
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			logger := log.New(f, "[mcp] ", log.Ldate|log.Ltime|log.Lshortfile)
			mcp.SetLogger(logger)
			defer f.Close()
		}
	}

	st, err := store.OpenOrInit(filepath.Join(stateDir, "state"))
	if err != nil {
		mcp.Log("fatal: opening state store: %v", err)
		fmt.Fprintf(os.Stderr, "zen-mcp: %v\n", err)
		os.Exit(1)
	}

	mcp.Log("starting: stateDir=%s", stateDir)

	srv := mcp.New(mcp.NewStateReader(st))
	if err := srv.Serve(); err != nil {
		mcp.Log("fatal: %v", err)
		fmt.Fprintf(os.Stderr, "zen-mcp: %v\n", err)
		os.Exit(1)
	}

	mcp.Log("shutdown cleanly")
}
