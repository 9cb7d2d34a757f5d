package dispatch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ariadne/internal/ambient"
	"ariadne/internal/checkpoint"
	"ariadne/internal/journal"
	"ariadne/internal/knowledge"

	"github.com/stretchr/testify/require"
)

type fakeAmbient struct {
	mu      sync.Mutex
	state   ambient.State
	fulls   int
	parts   int
	block   chan struct{}
	fullErr error
}

func (f *fakeAmbient) Read() ambient.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAmbient) WriteFull(s ambient.State) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fulls++
	if f.fullErr != nil {
		return f.fullErr
	}
	f.state = s
	return nil
}

func (f *fakeAmbient) WritePartial(p ambient.Patch) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts++
	f.state = p.Apply(f.state)
	return nil
}

func (f *fakeAmbient) snapshot() (ambient.State, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.fulls, f.parts
}

type fakeCheckpoints struct {
	mu      sync.Mutex
	creates int
	last    checkpoint.Record
	id      string
	err     error
}

func (f *fakeCheckpoints) Create(rec checkpoint.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.last = rec
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

type fakeGraph struct {
	mu        sync.Mutex
	entities  []knowledge.Entity
	relations []knowledge.Relation
	err       error
}

func (f *fakeGraph) Enabled() bool { return true }

func (f *fakeGraph) CreateEntities(_ context.Context, e []knowledge.Entity, r []knowledge.Relation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = append(f.entities, e...)
	f.relations = append(f.relations, r...)
	return f.err
}

func richEvent() Event {
	return Event{
		Type:      EventRichCheckpoint,
		SessionID: "s1",
		Checkpoint: &CheckpointPayload{
			Record: checkpoint.Record{
				Label:     "jwt auth midpoint",
				CreatedAt: time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC),
				Branch:    "feature/PROJ-123_add-auth",
				GitSHA:    "a1b2c3d",
				Task:      "Implement JWT middleware",
				Approach:  "middleware chain",
				Blockers:  []string{"schema review pending"},
				NextSteps: []string{"wire refresh tokens", "add expiry tests"},
			},
			Phase:           "implementation",
			ProgressSummary: "3/5 endpoints done",
		},
	}
}

func TestRichCheckpoint(t *testing.T) {
	amb := &fakeAmbient{}
	cps := &fakeCheckpoints{id: "20260821-100000-jwt-auth-midpoint"}
	graph := &fakeGraph{}
	d := New(Options{Ambient: amb, Checkpoints: cps, Graph: graph})

	advice := d.OnEvent(context.Background(), richEvent())
	require.False(t, advice.Suggest)
	require.Contains(t, advice.Message, "checkpoint created: 20260821-100000-jwt-auth-midpoint")

	state, fulls, parts := amb.snapshot()
	require.Equal(t, 1, fulls, "exactly one full write")
	require.Zero(t, parts)
	require.Equal(t, "Implement JWT middleware", state.Task)
	require.Equal(t, "implementation", state.Phase)
	require.Equal(t, "3/5 endpoints done", state.ProgressSummary)
	require.Equal(t, "wire refresh tokens", state.NextStep)
	require.Equal(t, cps.id, state.CheckpointRef)

	require.NotEmpty(t, graph.entities)
	require.Equal(t, "checkpoint:jwt auth midpoint", graph.entities[0].Name)
}

func TestRichCheckpointStoreFailureStopsWrite(t *testing.T) {
	amb := &fakeAmbient{}
	cps := &fakeCheckpoints{err: context.DeadlineExceeded}
	d := New(Options{Ambient: amb, Checkpoints: cps})

	advice := d.OnEvent(context.Background(), richEvent())
	require.Contains(t, advice.Message, "failed")

	_, fulls, _ := amb.snapshot()
	require.Zero(t, fulls, "working state must not change when the checkpoint write fails")
	require.Equal(t, 1, cps.creates, "no retry after a failed write")
}

func TestRichCheckpointGraphFailureIsBestEffort(t *testing.T) {
	amb := &fakeAmbient{}
	cps := &fakeCheckpoints{id: "20260821-100000-x"}
	graph := &fakeGraph{err: context.DeadlineExceeded}
	d := New(Options{Ambient: amb, Checkpoints: cps, Graph: graph})

	advice := d.OnEvent(context.Background(), richEvent())
	require.Contains(t, advice.Message, "checkpoint created")
}

func TestMinimalSavePreservesTask(t *testing.T) {
	store := ambient.NewStore(filepath.Join(t.TempDir(), "context.md"), nil)
	require.NoError(t, store.WriteFull(ambient.State{
		Task:  "Implement JWT middleware",
		Phase: "implementation",
	}))

	d := New(Options{Ambient: store, Checkpoints: &fakeCheckpoints{}})
	advice := d.OnEvent(context.Background(), Event{
		Type: EventMinimalSave,
		Save: &SavePayload{
			Branch:        "main",
			SHA:           "a1b2c3d",
			ModifiedFiles: []string{"a.go", "b.go"},
			Timestamp:     time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC),
		},
	})
	require.Contains(t, advice.Message, "state saved")

	got := store.Read()
	require.Equal(t, "Implement JWT middleware", got.Task, "minimal save must not touch the task")
	require.Equal(t, "implementation", got.Phase)
	require.Equal(t, "main", got.Branch)
	require.Contains(t, got.ProgressSummary, "a1b2c3d")
	require.Equal(t, "run resume", got.NextStep)
}

func TestMinimalSaveEmptyBranchLeavesBranch(t *testing.T) {
	amb := &fakeAmbient{state: ambient.State{Branch: "feature/x"}}
	d := New(Options{Ambient: amb, Checkpoints: &fakeCheckpoints{}})

	d.OnEvent(context.Background(), Event{
		Type: EventMinimalSave,
		Save: &SavePayload{SHA: "abc1234"},
	})

	state, _, parts := amb.snapshot()
	require.Equal(t, 1, parts)
	require.Equal(t, "feature/x", state.Branch)
}

func TestAdvisoryCount(t *testing.T) {
	amb := &fakeAmbient{}
	cps := &fakeCheckpoints{}
	d := New(Options{Ambient: amb, Checkpoints: cps, AdvisoryThreshold: 25})

	advice := d.OnEvent(context.Background(), Event{
		Type:  EventAdvisoryCount,
		Count: &CountPayload{ToolCalls: 10},
	})
	require.False(t, advice.Suggest)
	require.Empty(t, advice.Message)

	advice = d.OnEvent(context.Background(), Event{
		Type:  EventAdvisoryCount,
		Count: &CountPayload{ToolCalls: 25},
	})
	require.True(t, advice.Suggest)
	require.Contains(t, advice.Message, "25 tool calls")

	_, fulls, parts := amb.snapshot()
	require.Zero(t, fulls, "advisory checks mutate nothing")
	require.Zero(t, parts)
	require.Zero(t, cps.creates)
}

func TestTimeoutAbandonsWrite(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	amb := &fakeAmbient{block: block}
	d := New(Options{
		Ambient:     amb,
		Checkpoints: &fakeCheckpoints{},
		Timeout:     50 * time.Millisecond,
	})

	start := time.Now()
	advice := d.OnEvent(context.Background(), Event{
		Type: EventMinimalSave,
		Save: &SavePayload{Branch: "main"},
	})
	require.Less(t, time.Since(start), 2*time.Second)
	require.Contains(t, advice.Message, "timed out")
}

func TestSecondEventWaitsNotDropped(t *testing.T) {
	store := ambient.NewStore(filepath.Join(t.TempDir(), "context.md"), nil)
	d := New(Options{Ambient: store, Checkpoints: &fakeCheckpoints{}})

	var wg sync.WaitGroup
	results := make([]Advice, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.OnEvent(context.Background(), Event{
				Type: EventMinimalSave,
				Save: &SavePayload{Branch: "main"},
			})
		}(i)
	}
	wg.Wait()

	for _, advice := range results {
		require.Contains(t, advice.Message, "state saved")
	}
}

func TestUnknownEventDoesNotPanic(t *testing.T) {
	d := New(Options{Ambient: &fakeAmbient{}, Checkpoints: &fakeCheckpoints{}})

	advice := d.OnEvent(context.Background(), Event{Type: EventType("mystery")})
	require.Contains(t, advice.Message, "failed")

	advice = d.OnEvent(context.Background(), Event{Type: EventRichCheckpoint})
	require.Contains(t, advice.Message, "failed")
}

func TestJournalRecordsDispatches(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	store := ambient.NewStore(filepath.Join(t.TempDir(), "context.md"), nil)
	d := New(Options{
		Ambient:           store,
		Checkpoints:       &fakeCheckpoints{},
		Journal:           j,
		AdvisoryThreshold: 25,
	})

	for i := 0; i < 3; i++ {
		_, err := j.IncrementToolCount("s1")
		require.NoError(t, err)
	}

	d.OnEvent(context.Background(), Event{
		Type:      EventMinimalSave,
		SessionID: "s1",
		Save:      &SavePayload{Branch: "main"},
	})
	d.OnEvent(context.Background(), Event{
		Type:  EventAdvisoryCount,
		Count: &CountPayload{ToolCalls: 30},
	})

	rows, err := j.RecentDispatches(10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "advisory checks are not journaled")
	require.Equal(t, string(EventMinimalSave), rows[0].EventType)
	require.Equal(t, "ok", rows[0].Outcome)
	require.Equal(t, "s1", rows[0].SessionID)
	require.NotEmpty(t, rows[0].ID)

	n, err := j.ToolCount("s1")
	require.NoError(t, err)
	require.Zero(t, n, "a successful save resets the advisory tally")
}

func TestGraphRecords(t *testing.T) {
	rec := checkpoint.Record{
		Label:     "jwt-auth",
		CreatedAt: time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC),
		Task:      "Implement JWT middleware",
		Branch:    "feature/PROJ-123_add-auth",
		GitSHA:    "a1b2c3d",
		Blockers:  []string{"schema review"},
	}
	entities, relations := graphRecords(rec)

	require.Equal(t, "checkpoint:jwt-auth", entities[0].Name)
	require.Equal(t, "checkpoint", entities[0].EntityType)
	require.Contains(t, entities[0].Observations, "task: Implement JWT middleware")

	require.Equal(t, "date:2026-08-21", entities[1].Name)
	require.Equal(t, knowledge.RelationCreatedAt, relations[0].RelationType)

	require.Equal(t, "blocker:schema review", entities[2].Name)
	require.Equal(t, knowledge.RelationBlocks, relations[1].RelationType)
	require.Equal(t, "checkpoint:jwt-auth", relations[1].To)
}

func TestSaveSummary(t *testing.T) {
	require.Equal(t, "at a1b2c3d, 2 modified files",
		saveSummary(&SavePayload{SHA: "a1b2c3d", ModifiedFiles: []string{"a", "b"}}))
	require.Equal(t, "at a1b2c3d",
		saveSummary(&SavePayload{SHA: "a1b2c3d"}))
	require.Equal(t, "1 modified file",
		saveSummary(&SavePayload{ModifiedFiles: []string{"a"}}))
	require.Empty(t, saveSummary(&SavePayload{}))
}
