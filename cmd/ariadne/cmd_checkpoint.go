package main

import (
	"context"
	"fmt"
	"time"

	"ariadne/internal/checkpoint"
	"ariadne/internal/dispatch"
	"ariadne/internal/vcs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Flags for the checkpoint command
var (
	cpTask      string
	cpPhase     string
	cpSummary   string
	cpApproach  string
	cpHints     string
	cpDecisions []string
	cpProgress  []string
	cpKeyFiles  []string
	cpBlockers  []string
	cpNext      []string
)

// checkpointCmd captures a rich session snapshot
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <label>",
	Short: "Capture a rich snapshot of the current session",
	Long: `Writes an immutable checkpoint record, refreshes the working state to
point at it, and mirrors the snapshot into the knowledge graph when one
is configured.

The label names the moment. Branch and commit are read from git; the
rest comes from the flags.

Examples:
  ariadne checkpoint "jwt auth midpoint" --task "Implement JWT middleware" \
    --decision "RS256 over HS256" --next "wire refresh tokens"
  ariadne checkpoint "pre-refactor" --phase exploration --hints "see DESIGN notes"`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckpoint,
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.Close()

	rec := checkpoint.Record{
		Label:             args[0],
		Task:              cpTask,
		Decisions:         cpDecisions,
		ProgressChecklist: cpProgress,
		KeyFiles:          cpKeyFiles,
		Approach:          cpApproach,
		Blockers:          cpBlockers,
		NextSteps:         cpNext,
		ResumptionHints:   cpHints,
	}

	if sum, err := gitSummary(); err != nil {
		logger.Debug("Git context unavailable", zap.Error(err))
	} else {
		rec.Branch = sum.Branch
		rec.GitSHA = sum.SHA
	}

	advice := a.dispatcher.OnEvent(context.Background(), dispatch.Event{
		Type:      dispatch.EventRichCheckpoint,
		SessionID: cliSessionID(),
		Checkpoint: &dispatch.CheckpointPayload{
			Record:          rec,
			Phase:           cpPhase,
			ProgressSummary: cpSummary,
		},
	})
	fmt.Println(advice.Message)
	return nil
}

// gitSummary reads repository state on a short leash. Checkpoints and
// saves should not stall when git is slow or absent.
func gitSummary() (*vcs.Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return vcs.Snapshot(ctx, workspace)
}

func init() {
	checkpointCmd.Flags().StringVar(&cpTask, "task", "", "What you are working on")
	checkpointCmd.Flags().StringVar(&cpPhase, "phase", "", "Current phase (exploration, implementation, ...)")
	checkpointCmd.Flags().StringVar(&cpSummary, "summary", "", "One-line progress summary for the working state")
	checkpointCmd.Flags().StringVar(&cpApproach, "approach", "", "Current approach in a sentence")
	checkpointCmd.Flags().StringVar(&cpHints, "hints", "", "Hints for whoever resumes this")
	checkpointCmd.Flags().StringArrayVar(&cpDecisions, "decision", nil, "Decision made so far (repeatable)")
	checkpointCmd.Flags().StringArrayVar(&cpProgress, "progress", nil, "Progress checklist item (repeatable)")
	checkpointCmd.Flags().StringArrayVar(&cpKeyFiles, "key-file", nil, "File central to the task (repeatable)")
	checkpointCmd.Flags().StringArrayVar(&cpBlockers, "blocker", nil, "Open blocker (repeatable)")
	checkpointCmd.Flags().StringArrayVar(&cpNext, "next", nil, "Next step (repeatable)")
}
