// Command zen is the CLI entrypoint: it wires config, persistent storage,
// the agent runtime and worktree provisioner into a WorkflowDriver and runs
// it to completion, mirroring the teacher's root command in main.go (one
// Cobra root with program/autoyes flags, plus reset/debug/version
// subcommands) generalized to zen's workflow-per-prompt model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zen-cli/zen/agentpool"
	"github.com/zen-cli/zen/config"
	"github.com/zen-cli/zen/health"
	"github.com/zen-cli/zen/merge"
	"github.com/zen-cli/zen/retry"
	"github.com/zen-cli/zen/runtime"
	"github.com/zen-cli/zen/store"
	"github.com/zen-cli/zen/tui"
	"github.com/zen-cli/zen/workflow"
	"github.com/zen-cli/zen/worktree"
	"github.com/zen-cli/zen/zenerr"
	"github.com/zen-cli/zen/zenlog"
)

const version = "0.1.0"

var (
	programFlag           string
	trustFlag             bool
	skipDocumentationFlag bool
	tuiFlag               bool

	rootCmd = &cobra.Command{
		Use:   "zen",
		Short: "zen orchestrates parallel coding agents across a task DAG",
	}

	startCmd = &cobra.Command{
		Use:   "start <prompt>",
		Short: "Start a new workflow from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), strings.Join(args, " "))
		},
	}

	resumeCmd = &cobra.Command{
		Use:   "resume <workflow-id>",
		Short: "Resume a paused or failed workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd.Context(), args[0])
		},
	}

	batchCmd = &cobra.Command{
		Use:   "batch <prompts-file>",
		Short: "Start one workflow per line in prompts-file, run them concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), args[0])
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List known workflows and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print resolved configuration and storage paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the zen version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zen version %s\n", version)
		},
	}
)

func init() {
	startCmd.Flags().StringVarP(&programFlag, "program", "p", "", "agent binary to run (overrides zen.toml's command)")
	startCmd.Flags().BoolVarP(&trustFlag, "trust", "y", false, "auto-confirm agent trust-folder prompts")
	startCmd.Flags().BoolVar(&skipDocumentationFlag, "skip-documentation", false, "skip the documentation phase")
	startCmd.Flags().BoolVar(&tuiFlag, "tui", false, "show a live terminal view of workflow progress")
	resumeCmd.Flags().BoolVar(&tuiFlag, "tui", false, "show a live terminal view of workflow progress")

	rootCmd.AddCommand(startCmd, resumeCmd, batchCmd, listCmd, debugCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(zenerr.ExitCode(err))
	}
}

// env bundles every capability shared across a session's drivers, built once
// from config and handed to each workflow.Driver.
type env struct {
	cfg       *config.Config
	repoPath  string
	baseCommit string
	pool      *agentpool.Pool
	worktrees *worktree.Provisioner
	resolver  *merge.Resolver
	monitor   *health.Monitor
	store     *store.Store
	runtime   *runtime.Runtime
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	stateDir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	zenlog.Initialize(filepath.Join(stateDir, "zen.log"))

	repoPath, head, err := resolveRepo(".")
	if err != nil {
		return nil, zenerr.New(zenerr.Repository, "cmd.newEnv", err)
	}

	st, err := store.OpenOrInit(filepath.Join(stateDir, "state"))
	if err != nil {
		return nil, err
	}
	if err := st.MigrateLegacyState(filepath.Join(stateDir, "state.json"), "legacy"); err != nil {
		zenlog.WarningLog.Printf("legacy state migration: %v", err)
	}

	command := cfg.Command
	if programFlag != "" {
		command = programFlag
	}
	trust := cfg.Trust || trustFlag

	rt := runtime.New(command, trust)
	pool := agentpool.New(8, 64, rt)
	wt := worktree.New(repoPath, cfg.WorktreeDir)

	return &env{
		cfg:        cfg,
		repoPath:   repoPath,
		baseCommit: head,
		pool:       pool,
		worktrees:  wt,
		resolver:   merge.New(),
		monitor:    health.New(time.Duration(cfg.StuckTimeoutSeconds)*time.Second, cfg.MaxRetries, nil),
		store:      st,
		runtime:    rt,
	}, nil
}

func (e *env) driverConfig(prompt, baseCommit string) workflow.Config {
	return workflow.Config{
		Prompt:            prompt,
		BaseCommit:        baseCommit,
		WorktreeRoot:      e.cfg.WorktreeDir,
		Pool:              e.pool,
		Worktrees:         e.worktrees,
		Resolver:          e.resolver,
		Monitor:           e.monitor,
		Retries:           retry.New(),
		Store:             e.store,
		Waiter:            e.runtime,
		MaxRetries:        e.cfg.MaxRetries,
		PollInterval:      2 * time.Second,
		SkipDocumentation: e.cfg.SkipDocumentation || skipDocumentationFlag,
	}
}

func runStart(ctx context.Context, prompt string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	d := workflow.New(e.driverConfig(prompt, e.baseCommit))
	return drive(ctx, d)
}

func runResume(ctx context.Context, workflowID string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	rec, ok, err := workflow.LoadRecord(e.store, workflowID)
	if err != nil {
		return err
	}
	if !ok {
		return zenerr.New(zenerr.RefNotFound, "cmd.runResume", fmt.Errorf("no workflow %s", workflowID))
	}

	d, err := workflow.Resume(e.driverConfig(rec.Prompt, rec.BaseCommit), rec)
	if err != nil {
		return err
	}
	return drive(ctx, d)
}

// runBatch starts one workflow per non-blank, non-comment line in
// promptsFile and runs them concurrently, each as an independent
// Driver loop under one errgroup.Group, per the concurrency model's
// "multiple workflows run as independent WorkflowDriver loops" rule.
// They share a single env (pool/worktrees/store), which is safe: each
// Driver owns its own DAG/Scheduler and the store's ref namespace is
// keyed by workflow id.
func runBatch(ctx context.Context, promptsFile string) error {
	data, err := os.ReadFile(promptsFile)
	if err != nil {
		return zenerr.New(zenerr.Io, "cmd.runBatch", err)
	}

	var prompts []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if len(prompts) == 0 {
		return zenerr.New(zenerr.Other, "cmd.runBatch", fmt.Errorf("%s has no prompts", promptsFile))
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, prompt := range prompts {
		d := workflow.New(e.driverConfig(prompt, e.baseCommit))
		g.Go(func() error {
			return drive(gctx, d)
		})
	}
	return g.Wait()
}

func drive(ctx context.Context, d *workflow.Driver) error {
	if tuiFlag {
		return driveTUI(ctx, d)
	}

	go func() {
		for ev := range d.Events() {
			zenlog.InfoLog.Printf("workflow %s: %s (phase %s)", d.Workflow().ID, ev.Type, ev.Phase)
			if ev.Err != nil {
				zenlog.ErrorLog.Printf("workflow %s: %v", d.Workflow().ID, ev.Err)
			}
		}
	}()

	if err := d.Run(ctx); err != nil {
		return err
	}

	return reportOutcome(d)
}

// driveTUI runs the driver in the background while a Bubble Tea program
// renders its progress in the foreground, returning once both finish.
func driveTUI(ctx context.Context, d *workflow.Driver) error {
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- d.Run(ctx) }()

	if err := tui.Run(d); err != nil {
		return err
	}
	if err := <-runErrCh; err != nil {
		return err
	}

	return reportOutcome(d)
}

func reportOutcome(d *workflow.Driver) error {
	wf := d.Workflow()
	fmt.Printf("workflow %s finished: %s\n", wf.ID, wf.Status)
	if wf.Status == workflow.Paused {
		fmt.Printf("%d file(s) need manual conflict resolution; resume with `zen resume %s` after resolving\n",
			len(wf.PendingConflicts), wf.ID)
	}
	if wf.Status == workflow.Failed {
		return zenerr.New(zenerr.Other, "cmd.drive", fmt.Errorf("workflow %s failed", wf.ID))
	}
	return nil
}

func runList() error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	refs, err := e.store.ListRefs("workflows/")
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Println("no workflows found")
		return nil
	}

	for _, ref := range refs {
		id := strings.TrimPrefix(ref, "workflows/")
		var rec workflow.Record
		ok, err := e.store.ReadRef(ref, &rec)
		if err != nil || !ok {
			continue
		}
		fmt.Printf("%s  %-10s %-15s %s\n", id, rec.Status, rec.Phase, truncate(rec.Prompt, 60))
	}
	return nil
}

func runDebug() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path, err := config.Path()
	if err != nil {
		return err
	}
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	fmt.Printf("Config: %s\n%s\n", path, data)
	fmt.Printf("State repo: %s\n", filepath.Join(dir, "state"))
	if zenlog.IsDebugEnabled() {
		fmt.Println("Debug logging: enabled (DEBUG=1)")
	}
	return nil
}

// resolveRepo finds the git repository containing dir and its current HEAD
// commit, used as the workflow's BaseCommit.
func resolveRepo(dir string) (repoPath, head string, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", fmt.Errorf("zen must be run from within a git repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", "", err
	}
	headRef, err := repo.Head()
	if err != nil {
		return "", "", err
	}
	return wt.Filesystem.Root(), headRef.Hash().String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
