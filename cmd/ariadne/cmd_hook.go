// Package main: hidden hook handlers for host lifecycle events.
//
// The host calls these on its own lifecycle (session start, tool use,
// pre-compaction, session end), speaking the Claude Code hook contract:
// JSON on stdin, JSON on stdout. A handler must never disturb the host,
// so every failure path logs, replies {}, and exits 0.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ariadne/internal/config"
	"ariadne/internal/dispatch"
	"ariadne/internal/resume"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// maxHookStdinBytes caps stdin reads. Hook payloads are small JSON
// objects; 1 MB is generous headroom.
const maxHookStdinBytes = 1 << 20

// hookInput is the JSON the host sends on stdin to hook handlers.
type hookInput struct {
	CWD           string `json:"cwd"`
	SessionID     string `json:"session_id"`
	HookEventName string `json:"hook_event_name"`
}

// hookOutput is the reply the host reads from stdout. The zero value
// encodes as {}, meaning "nothing to add".
type hookOutput struct {
	HookSpecificOutput *hookSpecific `json:"hookSpecificOutput,omitempty"`
}

type hookSpecific struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// hookCmd is the parent for the hidden handlers
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Hook handlers for host lifecycle events",
	Long: `Handlers the host calls on lifecycle events. Each reads JSON from
stdin, replies with JSON on stdout, and always exits 0.

Wire them into the host's hook configuration:

  SessionStart  ->  ariadne hook session-start   (injects the resume briefing)
  PostToolUse   ->  ariadne hook post-tool       (counts tool calls, advises checkpoints)
  PreCompact    ->  ariadne hook pre-compact     (minimal save before compaction)
  SessionEnd    ->  ariadne hook session-end     (minimal save on the way out)`,
	// A hook must never block the host, so setup errors degrade to
	// defaults here instead of failing the command.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(); err != nil {
			cfg = config.DefaultConfig()
			logger = zap.NewNop()
			if workspace == "" {
				workspace, _ = os.Getwd()
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var hookSessionStartCmd = &cobra.Command{
	Use:           "session-start",
	Short:         "SessionStart hook: inject the resume briefing",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		emitHookReply(hookSessionStart(readHookStdin()))
		return nil
	},
}

var hookPostToolCmd = &cobra.Command{
	Use:           "post-tool",
	Short:         "PostToolUse hook: count tool calls, advise checkpoints",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		emitHookReply(hookPostTool(readHookStdin()))
		return nil
	},
}

var hookPreCompactCmd = &cobra.Command{
	Use:           "pre-compact",
	Short:         "PreCompact hook: minimal save before compaction",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		emitHookReply(hookMinimalSave("PreCompact", readHookStdin()))
		return nil
	},
}

var hookSessionEndCmd = &cobra.Command{
	Use:           "session-end",
	Short:         "SessionEnd hook: minimal save on the way out",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		emitHookReply(hookMinimalSave("SessionEnd", readHookStdin()))
		return nil
	},
}

// hookSessionStart runs a full resume and hands the briefing to the
// host as additional context for the fresh session.
func hookSessionStart(input hookInput) hookOutput {
	hookWorkspace(input)
	a := newApp()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DispatchTimeout())
	defer cancel()

	briefing := a.coordinator.Resume(ctx, resume.ModeFull)
	return hookOutput{HookSpecificOutput: &hookSpecific{
		HookEventName:     "SessionStart",
		AdditionalContext: briefing.Markdown(),
	}}
}

// hookPostTool bumps the session's tool-call counter and asks the
// dispatcher whether a checkpoint is due. Replies {} until the
// threshold is crossed.
func hookPostTool(input hookInput) hookOutput {
	hookWorkspace(input)
	a := newApp()
	defer a.Close()

	if a.journal == nil || input.SessionID == "" {
		return hookOutput{}
	}
	count, err := a.journal.IncrementToolCount(input.SessionID)
	if err != nil {
		logger.Warn("Tool counter unavailable", zap.Error(err))
		return hookOutput{}
	}

	advice := a.dispatcher.OnEvent(context.Background(), dispatch.Event{
		Type:      dispatch.EventAdvisoryCount,
		SessionID: input.SessionID,
		Count:     &dispatch.CountPayload{ToolCalls: count},
	})
	if !advice.Suggest {
		return hookOutput{}
	}
	return hookOutput{HookSpecificOutput: &hookSpecific{
		HookEventName:     "PostToolUse",
		AdditionalContext: advice.Message,
	}}
}

// hookMinimalSave fires a minimal save from live git context. Used by
// both the pre-compact and session-end handlers.
func hookMinimalSave(eventName string, input hookInput) hookOutput {
	hookWorkspace(input)
	a := newApp()
	defer a.Close()

	advice := a.dispatcher.OnEvent(context.Background(), dispatch.Event{
		Type:      dispatch.EventMinimalSave,
		SessionID: input.SessionID,
		Save:      gitSavePayload(),
	})
	logger.Info("Hook save handled",
		zap.String("hook", eventName),
		zap.String("result", advice.Message))
	return hookOutput{}
}

// hookWorkspace re-points state at the host session's directory. Hook
// processes are spawned wherever the host pleases; the state they touch
// belongs to the session's cwd.
func hookWorkspace(input hookInput) {
	if input.CWD == "" || input.CWD == workspace {
		return
	}
	workspace = input.CWD
	if c, err := config.Load(workspace); err == nil {
		cfg = c
	}
	_, statErr := os.Stat(filepath.Join(workspace, config.DirName))
	initialized = statErr == nil
}

func readHookStdin() hookInput {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxHookStdinBytes))
	if err != nil {
		return hookInput{}
	}
	var input hookInput
	if err := json.Unmarshal(data, &input); err != nil {
		logger.Warn("Hook stdin unmarshal failed", zap.Error(err), zap.Int("bytes", len(data)))
	}
	return input
}

// emitHookReply writes the JSON reply. Encoding failures are swallowed;
// a hook reply is best-effort like everything else here.
func emitHookReply(out hookOutput) {
	if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
		fmt.Fprintln(os.Stdout, "{}")
	}
}

func init() {
	for _, sub := range []*cobra.Command{
		hookSessionStartCmd,
		hookPostToolCmd,
		hookPreCompactCmd,
		hookSessionEndCmd,
	} {
		sub.Hidden = true
		hookCmd.AddCommand(sub)
	}
}
