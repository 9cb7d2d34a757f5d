// Package dispatch routes host lifecycle events to the state stores.
// One event is handled at a time, bounded by a wall-clock timeout, and
// nothing in here ever returns an error to the host: failures are
// logged, journaled, and reported as text.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ariadne/internal/ambient"
	"ariadne/internal/checkpoint"
	"ariadne/internal/journal"
	"ariadne/internal/knowledge"
	"ariadne/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType names the three trigger kinds the host can deliver.
type EventType string

const (
	// EventRichCheckpoint captures full task context: a new checkpoint
	// file, a refreshed working state, and best-effort graph entities.
	EventRichCheckpoint EventType = "rich-checkpoint"

	// EventMinimalSave patches the working state with whatever a
	// task-blind context can observe: branch, commit, modified files.
	EventMinimalSave EventType = "minimal-save"

	// EventAdvisoryCount mutates nothing; it answers whether enough
	// work has piled up to suggest a checkpoint.
	EventAdvisoryCount EventType = "advisory-count"
)

// adviceRunResume is the fixed next step written by a minimal save,
// pointing the next session at the resume flow.
const adviceRunResume = "run resume"

// CheckpointPayload carries everything a rich checkpoint stores.
// ProgressSummary and Phase feed the working state; the record is
// written to the checkpoint store as given.
type CheckpointPayload struct {
	Record          checkpoint.Record
	Phase           string
	ProgressSummary string
}

// SavePayload carries the fields a minimal save can observe.
type SavePayload struct {
	Branch        string
	SHA           string
	ModifiedFiles []string
	Timestamp     time.Time
}

// CountPayload carries the tool-call tally for an advisory check.
type CountPayload struct {
	ToolCalls int
}

// Event is one trigger delivered by the host. Exactly one payload
// field matching Type should be set.
type Event struct {
	Type       EventType
	SessionID  string
	Checkpoint *CheckpointPayload
	Save       *SavePayload
	Count      *CountPayload
}

// Advice is the dispatcher's only feedback channel. Message describes
// what happened in one line; Suggest is set when an advisory check
// crosses the threshold.
type Advice struct {
	Suggest bool
	Message string
}

// AmbientStore is the Tier-1 surface the dispatcher writes.
type AmbientStore interface {
	Read() ambient.State
	WriteFull(ambient.State) error
	WritePartial(ambient.Patch) error
}

// CheckpointStore is the Tier-2 surface the dispatcher writes.
type CheckpointStore interface {
	Create(checkpoint.Record) (string, error)
}

// GraphWriter is the best-effort Tier-3 surface.
type GraphWriter interface {
	Enabled() bool
	CreateEntities(ctx context.Context, entities []knowledge.Entity, relations []knowledge.Relation) error
}

// Options wires a Dispatcher. Graph and Journal may be nil.
type Options struct {
	Ambient           AmbientStore
	Checkpoints       CheckpointStore
	Graph             GraphWriter
	Journal           *journal.Journal
	Timeout           time.Duration
	AdvisoryThreshold int
	Logger            *zap.Logger
}

// Dispatcher serializes trigger handling. A second event arriving
// mid-dispatch waits on the mutex; it is never dropped.
type Dispatcher struct {
	mu sync.Mutex

	ambient     AmbientStore
	checkpoints CheckpointStore
	graph       GraphWriter
	journal     *journal.Journal
	timeout     time.Duration
	threshold   int
	logger      *zap.Logger
}

// New creates a Dispatcher from opts.
func New(opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		ambient:     opts.Ambient,
		checkpoints: opts.Checkpoints,
		graph:       opts.Graph,
		journal:     opts.Journal,
		timeout:     timeout,
		threshold:   opts.AdvisoryThreshold,
		logger:      logging.OrNop(opts.Logger),
	}
}

type outcome struct {
	detail string
	err    error
}

// OnEvent handles one trigger to completion or timeout. It never
// panics past recover and never returns an error; the host's loop must
// not be interruptible from here.
func (d *Dispatcher) OnEvent(ctx context.Context, ev Event) (advice Advice) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panicked", zap.Any("panic", r),
				zap.String("event", string(ev.Type)))
			advice = Advice{Message: fmt.Sprintf("dispatch failed: %v", r)}
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Advisory checks are pure; answer without the timeout machinery.
	if ev.Type == EventAdvisoryCount {
		return d.advisoryCount(ev)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		switch ev.Type {
		case EventRichCheckpoint:
			detail, err := d.richCheckpoint(ctx, ev)
			done <- outcome{detail: detail, err: err}
		case EventMinimalSave:
			detail, err := d.minimalSave(ev)
			done <- outcome{detail: detail, err: err}
		default:
			done <- outcome{err: fmt.Errorf("unknown event type %q", ev.Type)}
		}
	}()

	var res outcome
	status := "ok"
	select {
	case res = <-done:
		if res.err != nil {
			status = "error"
			d.logger.Warn("dispatch failed",
				zap.String("event", string(ev.Type)), zap.Error(res.err))
		}
	case <-ctx.Done():
		status = "timeout"
		res.err = fmt.Errorf("dispatch timed out after %s", d.timeout)
		d.logger.Warn("dispatch timed out, abandoning write",
			zap.String("event", string(ev.Type)),
			zap.Duration("timeout", d.timeout))
	}

	d.record(ev, status, res, time.Since(start))

	if res.err != nil {
		return Advice{Message: fmt.Sprintf("%s failed: %v", ev.Type, res.err)}
	}
	return Advice{Message: res.detail}
}

// richCheckpoint writes the checkpoint file, refreshes the full
// working state with a reference to it, then feeds the graph.
func (d *Dispatcher) richCheckpoint(ctx context.Context, ev Event) (string, error) {
	p := ev.Checkpoint
	if p == nil {
		return "", fmt.Errorf("rich checkpoint event without payload")
	}

	rec := p.Record
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	id, err := d.checkpoints.Create(rec)
	if err != nil {
		return "", fmt.Errorf("checkpoint write failed: %w", err)
	}

	state := ambient.State{
		Branch:          rec.Branch,
		Task:            rec.Task,
		Phase:           p.Phase,
		ProgressSummary: p.ProgressSummary,
		Approach:        rec.Approach,
		Blockers:        strings.Join(rec.Blockers, "; "),
		CheckpointRef:   id,
		UpdatedAt:       rec.CreatedAt,
	}
	if len(rec.NextSteps) > 0 {
		state.NextStep = rec.NextSteps[0]
	}
	if err := d.ambient.WriteFull(state); err != nil {
		return "", fmt.Errorf("checkpoint %s written but working state stale: %w", id, err)
	}

	if d.graph != nil && d.graph.Enabled() {
		entities, relations := graphRecords(rec)
		if err := d.graph.CreateEntities(ctx, entities, relations); err != nil {
			d.logger.Warn("knowledge graph write skipped", zap.Error(err))
		}
	}

	d.resetCounter(ev.SessionID)
	return fmt.Sprintf("checkpoint created: %s", id), nil
}

// minimalSave patches only the observable fields and the fixed
// advisory next step. Task, phase, and approach are left alone.
func (d *Dispatcher) minimalSave(ev Event) (string, error) {
	p := ev.Save
	if p == nil {
		return "", fmt.Errorf("minimal save event without payload")
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	patch := ambient.Patch{
		NextStep:  ambient.String(adviceRunResume),
		UpdatedAt: ambient.Time(ts),
	}
	if p.Branch != "" {
		patch.Branch = ambient.String(p.Branch)
	}
	if summary := saveSummary(p); summary != "" {
		patch.ProgressSummary = ambient.String(summary)
	}

	if err := d.ambient.WritePartial(patch); err != nil {
		return "", fmt.Errorf("minimal save failed: %w", err)
	}

	d.resetCounter(ev.SessionID)
	if p.Branch != "" {
		return fmt.Sprintf("state saved on %s", p.Branch), nil
	}
	return "state saved", nil
}

// advisoryCount reports whether the tally warrants a checkpoint. No
// store is touched and no journal row is written.
func (d *Dispatcher) advisoryCount(ev Event) Advice {
	p := ev.Count
	if p == nil || d.threshold <= 0 || p.ToolCalls < d.threshold {
		return Advice{}
	}
	return Advice{
		Suggest: true,
		Message: fmt.Sprintf("%d tool calls since the last save; consider checkpointing", p.ToolCalls),
	}
}

// record journals the dispatch when a journal is wired.
func (d *Dispatcher) record(ev Event, status string, res outcome, took time.Duration) {
	if d.journal == nil {
		return
	}
	detail := res.detail
	if res.err != nil {
		detail = res.err.Error()
	}
	err := d.journal.RecordDispatch(journal.Dispatch{
		ID:        uuid.NewString(),
		SessionID: ev.SessionID,
		EventType: string(ev.Type),
		Outcome:   status,
		Detail:    detail,
		Duration:  took,
	})
	if err != nil {
		d.logger.Warn("journal write failed", zap.Error(err))
	}
}

// resetCounter zeroes the advisory tally after a successful save.
func (d *Dispatcher) resetCounter(sessionID string) {
	if d.journal == nil || sessionID == "" {
		return
	}
	if err := d.journal.ResetToolCount(sessionID); err != nil {
		d.logger.Warn("tool count reset failed", zap.Error(err))
	}
}

// saveSummary folds the observable VCS facts into one progress line.
func saveSummary(p *SavePayload) string {
	var parts []string
	if p.SHA != "" {
		parts = append(parts, fmt.Sprintf("at %s", p.SHA))
	}
	switch n := len(p.ModifiedFiles); {
	case n == 1:
		parts = append(parts, "1 modified file")
	case n > 1:
		parts = append(parts, fmt.Sprintf("%d modified files", n))
	}
	return strings.Join(parts, ", ")
}

// graphRecords maps one checkpoint onto graph entities: the checkpoint
// node, a date node it was created-at, and one node per open blocker.
func graphRecords(rec checkpoint.Record) ([]knowledge.Entity, []knowledge.Relation) {
	name := knowledge.CheckpointName(rec.Label)
	day := rec.CreatedAt.UTC().Format("2006-01-02")

	obs := []string{"created " + rec.CreatedAt.UTC().Format(time.RFC3339)}
	if rec.Task != "" {
		obs = append(obs, "task: "+rec.Task)
	}
	if rec.Branch != "" {
		loc := "branch: " + rec.Branch
		if rec.GitSHA != "" {
			loc += " at " + rec.GitSHA
		}
		obs = append(obs, loc)
	}
	if rec.ResumptionHints != "" {
		obs = append(obs, "resume: "+rec.ResumptionHints)
	}
	obs = append(obs, rec.Decisions...)

	entities := []knowledge.Entity{
		{Name: name, EntityType: "checkpoint", Observations: obs},
		{Name: "date:" + day, EntityType: "date"},
	}
	relations := []knowledge.Relation{
		{From: name, To: "date:" + day, RelationType: knowledge.RelationCreatedAt},
	}

	for _, b := range rec.Blockers {
		bn := knowledge.BlockerName(b)
		entities = append(entities, knowledge.Entity{
			Name:         bn,
			EntityType:   "blocker",
			Observations: []string{"open as of " + rec.CreatedAt.UTC().Format(time.RFC3339)},
		})
		relations = append(relations, knowledge.Relation{
			From: bn, To: name, RelationType: knowledge.RelationBlocks,
		})
	}
	return entities, relations
}
