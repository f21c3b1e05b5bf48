package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"qoze/internal/gateway"
	"qoze/internal/logging"
	"qoze/internal/orchestrator"
	"qoze/internal/session"
	"qoze/internal/skills"
	"qoze/internal/tools"
	"qoze/internal/tools/fsops"
	"qoze/internal/tools/research"
	"qoze/internal/tools/shell"
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run the agent loop on a goal",
	Long: `Creates a session in the workspace, resolves active skills and
drives the reasoning loop until the goal is answered, the step ceiling
is hit, or the run is interrupted with Ctrl-C.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	registry := tools.NewRegistry()
	if err := shell.RegisterAll(registry); err != nil {
		return err
	}
	if err := fsops.RegisterAll(registry); err != nil {
		return err
	}
	if err := research.RegisterAll(registry, cfg.LLM.TavilyAPIKey); err != nil {
		return err
	}
	defer research.ShutdownBrowser()

	gw, err := gateway.NewFromConfig(cfg.LLM)
	if err != nil {
		return err
	}

	dispatcher := tools.NewDispatcher(registry, tools.DispatcherConfig{
		DefaultTimeout: cfg.Execution.ToolTimeout.Std(),
		MaxParallel:    cfg.Execution.MaxParallelTools,
		CancelGrace:    cfg.Execution.CancelGrace.Std(),
	})

	loader := skills.NewLoader(cfg.Skills)
	if watcher, err := skills.NewWatcher(loader, workspace); err == nil {
		defer watcher.Close()
	}

	var store *session.Store
	if path, err := session.DefaultStorePath(); err == nil {
		if store, err = session.OpenStore(path); err != nil {
			logging.Boot("session store unavailable: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	supervisor := session.NewSupervisor(cfg, gw, registry, dispatcher, loader, store)
	defer supervisor.Close()

	sess, err := supervisor.Create(workspace)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupted, cancelling session...")
		_ = supervisor.Cancel(sess.ID)
	}()

	events, err := supervisor.Submit(ctx, sess.ID, goal)
	if err != nil {
		return err
	}

	return renderEvents(events)
}

// renderEvents prints the step stream to the terminal.
func renderEvents(events <-chan orchestrator.StepEvent) error {
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventTokenDelta:
			fmt.Print(ev.Text)
		case orchestrator.EventToolCallDetected:
			fmt.Printf("\n→ %s\n", ev.ToolCall.Name)
		case orchestrator.EventToolCompleted:
			status := string(ev.ToolResult.Status)
			fmt.Printf("← %s [%s] (%dms)\n", ev.ToolResult.ToolName, status, ev.ToolResult.ElapsedMs)
		case orchestrator.EventSessionDone:
			fmt.Println()
			return nil
		case orchestrator.EventSessionFailed:
			fmt.Println()
			return fmt.Errorf("session failed: %s", ev.Reason)
		case orchestrator.EventSessionCancelled:
			fmt.Println("\nsession cancelled")
			return nil
		}
	}
	return nil
}
