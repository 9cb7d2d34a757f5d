package main

import (
	"context"
	"fmt"
	"time"

	"ariadne/internal/dispatch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// saveCmd patches the working state from live git context
var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Patch the working state from live git context",
	Long: `Fires a minimal save: branch, commit, and modified files are read from
git and folded into the working state, without touching the checkpoint
store. This is the cheap path for "context is about to vanish"; run
'ariadne checkpoint' when there is time for a real snapshot.`,
	Args: cobra.NoArgs,
	RunE: runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	a := newApp()
	defer a.Close()

	advice := a.dispatcher.OnEvent(context.Background(), dispatch.Event{
		Type:      dispatch.EventMinimalSave,
		SessionID: cliSessionID(),
		Save:      gitSavePayload(),
	})
	fmt.Println(advice.Message)
	return nil
}

// gitSavePayload gathers what a task-blind save can observe. Without a
// repository the payload still carries a timestamp; the save then only
// stamps the working state.
func gitSavePayload() *dispatch.SavePayload {
	payload := &dispatch.SavePayload{Timestamp: time.Now()}

	sum, err := gitSummary()
	if err != nil {
		logger.Debug("Git context unavailable", zap.Error(err))
		return payload
	}
	payload.Branch = sum.Branch
	payload.SHA = sum.ShortSHA
	payload.ModifiedFiles = sum.ModifiedFiles
	return payload
}
