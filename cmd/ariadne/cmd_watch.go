package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ariadne/internal/watch"

	"github.com/spf13/cobra"
)

// watchCmd auto-saves the working state as the workspace changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Auto-save the working state as the workspace changes",
	Long: `Watches the workspace and fires a minimal save once a burst of file
changes settles (500ms debounce). Saves are floored to one per 30s so a
busy session does not thrash the state file. The .git, .ariadne,
node_modules, and vendor directories never trigger.

Blocks until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(watch.Options{
		Workspace: workspace,
		Trigger:   a.dispatcher,
		SessionID: cliSessionID(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", workspace)
	<-ctx.Done()
	w.Stop()

	stats := w.Stats()
	fmt.Printf("\nSaw %d events, fired %d saves.\n", stats.EventsSeen, stats.SavesTriggered)
	return nil
}
