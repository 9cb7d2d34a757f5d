// Package ambient owns the Tier-1 working state: one small, bounded,
// always-current section inside the workspace context document. The
// host is expected to load this document on every turn, so writes keep
// it tight and readers never block on anything remote.
package ambient

import (
	"fmt"
	"strings"
	"time"
)

const (
	// SectionHeader marks the one section of the context document this
	// package owns. Everything outside it is preserved byte-for-byte.
	SectionHeader = "## Working State"

	// MaxStateLines bounds the rendered working-state block, header
	// included.
	MaxStateLines = 15

	// MaxDocumentLines bounds the whole context document after a write.
	MaxDocumentLines = 200
)

// State is the always-current snapshot of where the session is. All
// fields are optional; an empty State renders as a bare section header.
type State struct {
	Branch          string
	Task            string
	Phase           string
	ProgressSummary string
	Approach        string
	Blockers        string
	NextStep        string
	CheckpointRef   string
	UpdatedAt       time.Time
}

// Patch overwrites only the fields that are set; nil pointers leave the
// current value untouched.
type Patch struct {
	Branch          *string
	Task            *string
	Phase           *string
	ProgressSummary *string
	Approach        *string
	Blockers        *string
	NextStep        *string
	CheckpointRef   *string
	UpdatedAt       *time.Time
}

// Apply returns a copy of s with the patch fields overwritten.
func (p Patch) Apply(s State) State {
	if p.Branch != nil {
		s.Branch = *p.Branch
	}
	if p.Task != nil {
		s.Task = *p.Task
	}
	if p.Phase != nil {
		s.Phase = *p.Phase
	}
	if p.ProgressSummary != nil {
		s.ProgressSummary = *p.ProgressSummary
	}
	if p.Approach != nil {
		s.Approach = *p.Approach
	}
	if p.Blockers != nil {
		s.Blockers = *p.Blockers
	}
	if p.NextStep != nil {
		s.NextStep = *p.NextStep
	}
	if p.CheckpointRef != nil {
		s.CheckpointRef = *p.CheckpointRef
	}
	if p.UpdatedAt != nil {
		s.UpdatedAt = *p.UpdatedAt
	}
	return s
}

// IsZero reports whether no field carries a value.
func (s State) IsZero() bool {
	return s == State{}
}

// field labels as they appear in the rendered block.
const (
	labelBranch     = "Branch"
	labelTask       = "Task"
	labelPhase      = "Phase"
	labelProgress   = "Progress"
	labelApproach   = "Approach"
	labelBlockers   = "Blockers"
	labelNextStep   = "Next step"
	labelCheckpoint = "Checkpoint"
	labelUpdated    = "Updated"
)

// Render produces the working-state block, one bullet per populated
// field, capped at MaxStateLines. The output is deterministic for a
// given State so identical writes produce identical bytes.
func (s State) Render() []string {
	lines := []string{SectionHeader}

	add := func(label, value string) {
		if value == "" {
			return
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", label, singleLine(value)))
	}

	add(labelBranch, s.Branch)
	add(labelTask, s.Task)
	add(labelPhase, s.Phase)
	add(labelProgress, s.ProgressSummary)
	add(labelApproach, s.Approach)
	add(labelBlockers, s.Blockers)
	add(labelNextStep, s.NextStep)
	add(labelCheckpoint, s.CheckpointRef)
	if !s.UpdatedAt.IsZero() {
		add(labelUpdated, s.UpdatedAt.UTC().Format(time.RFC3339))
	}

	if len(lines) > MaxStateLines {
		lines = lines[:MaxStateLines]
	}
	return lines
}

// ParseBlock reconstructs a State from rendered block lines. Unknown
// bullets are ignored so a hand-edited document still reads cleanly.
func ParseBlock(lines []string) State {
	var s State
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		label, value, ok := strings.Cut(trimmed[2:], ": ")
		if !ok {
			continue
		}
		switch label {
		case labelBranch:
			s.Branch = value
		case labelTask:
			s.Task = value
		case labelPhase:
			s.Phase = value
		case labelProgress:
			s.ProgressSummary = value
		case labelApproach:
			s.Approach = value
		case labelBlockers:
			s.Blockers = value
		case labelNextStep:
			s.NextStep = value
		case labelCheckpoint:
			s.CheckpointRef = value
		case labelUpdated:
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				s.UpdatedAt = ts
			}
		}
	}
	return s
}

// singleLine collapses embedded newlines so one field cannot blow the
// line budget.
func singleLine(v string) string {
	v = strings.ReplaceAll(v, "\r\n", "\n")
	v = strings.ReplaceAll(v, "\n", "; ")
	return strings.TrimSpace(v)
}

// String returns a *string for patch assembly.
func String(v string) *string { return &v }

// Time returns a *time.Time for patch assembly.
func Time(t time.Time) *time.Time { return &t }
