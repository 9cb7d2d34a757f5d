// Package resume reconstructs "where was I" after an interruption. It
// reads every tier plus the repository, merges them with fixed
// precedence, and always hands back a briefing, degraded or not.
package resume

import (
	"fmt"
	"strings"
	"time"

	"ariadne/internal/ambient"
	"ariadne/internal/checkpoint"
	"ariadne/internal/knowledge"
	"ariadne/internal/vcs"
)

// Mode selects how much of the world a resume consults.
type Mode string

const (
	// ModeAmbient answers from the working state alone.
	ModeAmbient Mode = "ambient"

	// ModeFull fans out to the checkpoint store, git, and the
	// knowledge graph, each on its own timeout.
	ModeFull Mode = "full"
)

// Briefing is the synthesized recovery picture. The scalar fields are
// merged with ambient state winning over checkpoint data over
// repository facts; the raw sources stay attached for the narrative
// sections.
type Briefing struct {
	GeneratedAt time.Time
	Mode        Mode

	Task     string
	Branch   string
	Phase    string
	Progress string
	NextStep string

	State ambient.State

	Checkpoint   *checkpoint.Record
	CheckpointID string

	Git *vcs.Summary

	GraphCheckpoints []knowledge.Entity
	GraphBlockers    []knowledge.Entity

	Notes []string
}

// Degraded reports whether any source was unavailable.
func (b *Briefing) Degraded() bool {
	return len(b.Notes) > 0
}

// AttachCheckpoint swaps in a checkpoint narrative and fills any
// still-empty scalar from it. Values already merged from the working
// state are never overwritten.
func (b *Briefing) AttachCheckpoint(rec *checkpoint.Record, id string) {
	b.Checkpoint = rec
	b.CheckpointID = id
	if rec == nil {
		return
	}
	if b.Task == "" {
		b.Task = rec.Task
	}
	if b.Branch == "" {
		b.Branch = rec.Branch
	}
	if b.NextStep == "" && len(rec.NextSteps) > 0 {
		b.NextStep = rec.NextSteps[0]
	}
}

// Markdown renders the briefing for display or piping.
func (b *Briefing) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# Resume Briefing\n\n")
	fmt.Fprintf(&sb, "Generated %s, %s mode.\n",
		b.GeneratedAt.Format(time.RFC3339), b.Mode)

	sb.WriteString("\n## Where You Were\n\n")
	wrote := false
	bullet := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&sb, "- **%s**: %s\n", label, value)
		wrote = true
	}
	bullet("Task", b.Task)
	bullet("Phase", b.Phase)
	bullet("Branch", b.Branch)
	bullet("Progress", b.Progress)
	bullet("Next step", b.NextStep)
	bullet("Blockers", b.State.Blockers)
	bullet("Approach", b.State.Approach)
	if !b.State.UpdatedAt.IsZero() {
		bullet("Last saved", b.State.UpdatedAt.UTC().Format(time.RFC3339))
	}
	if !wrote {
		sb.WriteString("Nothing recorded yet.\n")
	}

	if rec := b.Checkpoint; rec != nil {
		sb.WriteString("\n## Last Checkpoint\n\n")
		fmt.Fprintf(&sb, "%s (created %s)\n", b.CheckpointID,
			rec.CreatedAt.UTC().Format(time.RFC3339))
		list := func(label string, items []string) {
			if len(items) == 0 {
				return
			}
			fmt.Fprintf(&sb, "\n%s:\n", label)
			for _, item := range items {
				fmt.Fprintf(&sb, "- %s\n", item)
			}
		}
		list("Decisions", rec.Decisions)
		list("Progress", rec.ProgressChecklist)
		list("Key files", rec.KeyFiles)
		list("Next steps", rec.NextSteps)
		if rec.ResumptionHints != "" {
			fmt.Fprintf(&sb, "\nResumption hints: %s\n", rec.ResumptionHints)
		}
	}

	if g := b.Git; g != nil {
		sb.WriteString("\n## Repository\n\n")
		fmt.Fprintf(&sb, "- **Branch**: %s\n", g.Branch)
		fmt.Fprintf(&sb, "- **Status**: %s\n", g.StatusLine())
		if g.LastCommit != "" {
			fmt.Fprintf(&sb, "- **Last commit**: %s\n", g.LastCommit)
		}
		if len(g.ModifiedFiles) > 0 {
			sb.WriteString("\nModified files:\n")
			for i, file := range g.ModifiedFiles {
				if i == 10 {
					fmt.Fprintf(&sb, "- and %d more\n", len(g.ModifiedFiles)-i)
					break
				}
				fmt.Fprintf(&sb, "- %s\n", file)
			}
		}
	}

	if len(b.GraphCheckpoints) > 0 || len(b.GraphBlockers) > 0 {
		sb.WriteString("\n## Knowledge Graph\n\n")
		names := func(label string, entities []knowledge.Entity, limit int) {
			if len(entities) == 0 {
				return
			}
			fmt.Fprintf(&sb, "%s:\n", label)
			for i, e := range entities {
				if i == limit {
					fmt.Fprintf(&sb, "- and %d more\n", len(entities)-i)
					break
				}
				fmt.Fprintf(&sb, "- %s\n", e.Name)
			}
		}
		names("Known checkpoints", b.GraphCheckpoints, 5)
		names("Known blockers", b.GraphBlockers, 5)
	}

	if b.Degraded() {
		sb.WriteString("\n## Degraded Sources\n\n")
		sb.WriteString("Reduced confidence: some sources were unavailable.\n\n")
		for _, note := range b.Notes {
			fmt.Fprintf(&sb, "- %s\n", note)
		}
	}

	return sb.String()
}
