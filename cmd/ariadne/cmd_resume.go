package main

import (
	"context"
	"fmt"

	"ariadne/internal/checkpoint"
	"ariadne/internal/resume"
	"ariadne/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Flags for the resume command
var (
	resumeFull  bool
	resumePick  bool
	resumePlain bool
)

// resumeCmd prints the recovery briefing
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Print a recovery briefing for the interrupted session",
	Long: `Reassembles "where was I" after context loss. The working state always
answers; --full additionally consults the checkpoint store, git, and
the knowledge graph, each on its own timeout. Sources that cannot
answer become degradation notes, never errors.

  ariadne resume            working state only (fast, always works)
  ariadne resume --full     all tiers plus repository state
  ariadne resume --pick     choose the checkpoint to brief from`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.Close()

	mode := resume.ModeAmbient
	if resumeFull {
		mode = resume.ModeFull
	}

	// A picked checkpoint replaces the latest-checkpoint source, so the
	// coordinator only merges the working state.
	var picked *checkpoint.Record
	var pickedID string
	if resumePick {
		var err error
		pickedID, picked, err = pickCheckpoint(a)
		if err != nil {
			return err
		}
		if picked == nil {
			return nil
		}
		mode = resume.ModeAmbient
	}

	briefing := a.coordinator.Resume(context.Background(), mode)
	if picked != nil {
		briefing.AttachCheckpoint(picked, pickedID)
	}

	if resumePlain {
		fmt.Println(briefing.Markdown())
		return nil
	}
	out, err := resume.RenderTerminal(briefing)
	if err != nil {
		logger.Debug("Terminal rendering unavailable", zap.Error(err))
		fmt.Println(briefing.Markdown())
		return nil
	}
	fmt.Print(out)
	return nil
}

// pickCheckpoint runs the interactive picker. A nil record with a nil
// error means there was nothing to pick or the user cancelled.
func pickCheckpoint(a *app) (string, *checkpoint.Record, error) {
	ids, err := a.checkpoints.List()
	if err != nil {
		return "", nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	items := make([]tui.PickerItem, 0, len(ids))
	for _, id := range ids {
		rec, err := a.checkpoints.Get(id)
		if err != nil {
			logger.Warn("Skipping unreadable checkpoint", zap.String("id", id), zap.Error(err))
			continue
		}
		items = append(items, tui.PickerItem{ID: id, Record: rec})
	}
	if len(items) == 0 {
		fmt.Println("No checkpoints to pick from.")
		return "", nil, nil
	}

	chosen, err := tui.Pick(items)
	if err != nil || chosen == "" {
		return "", nil, err
	}
	rec, err := a.checkpoints.Get(chosen)
	if err != nil {
		return "", nil, err
	}
	return chosen, rec, nil
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeFull, "full", false, "Consult all tiers, not just the working state")
	resumeCmd.Flags().BoolVar(&resumePick, "pick", false, "Pick the checkpoint interactively")
	resumeCmd.Flags().BoolVar(&resumePlain, "plain", false, "Plain markdown output (no terminal styling)")
}
