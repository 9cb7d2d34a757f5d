package resume

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ariadne/internal/ambient"
	"ariadne/internal/checkpoint"
	"ariadne/internal/knowledge"
	"ariadne/internal/logging"
	"ariadne/internal/vcs"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AmbientReader is the Tier-1 surface a resume needs.
type AmbientReader interface {
	Read() ambient.State
}

// CheckpointSource is the Tier-2 surface a resume needs.
type CheckpointSource interface {
	Latest() (*checkpoint.Record, string, error)
}

// GraphSearcher is the Tier-3 surface a resume needs.
type GraphSearcher interface {
	Enabled() bool
	SearchNodes(ctx context.Context, query string) (*knowledge.SearchResult, error)
}

// Options wires a Coordinator. Graph may be nil; GitSnapshot defaults
// to querying the real git CLI.
type Options struct {
	Ambient       AmbientReader
	Checkpoints   CheckpointSource
	Graph         GraphSearcher
	Workspace     string
	SourceTimeout time.Duration
	Logger        *zap.Logger
	GitSnapshot   func(ctx context.Context, dir string) (*vcs.Summary, error)
}

// Coordinator assembles briefings. It holds no state of its own.
type Coordinator struct {
	ambient       AmbientReader
	checkpoints   CheckpointSource
	graph         GraphSearcher
	workspace     string
	sourceTimeout time.Duration
	logger        *zap.Logger
	gitSnapshot   func(ctx context.Context, dir string) (*vcs.Summary, error)
}

// New creates a Coordinator from opts.
func New(opts Options) *Coordinator {
	timeout := opts.SourceTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	gitFn := opts.GitSnapshot
	if gitFn == nil {
		gitFn = vcs.Snapshot
	}
	return &Coordinator{
		ambient:       opts.Ambient,
		checkpoints:   opts.Checkpoints,
		graph:         opts.Graph,
		workspace:     opts.Workspace,
		sourceTimeout: timeout,
		logger:        logging.OrNop(opts.Logger),
		gitSnapshot:   gitFn,
	}
}

// Resume builds a briefing. It never returns an error: every source
// that cannot answer in time becomes a degradation note, and the worst
// case is a briefing holding only default working-state values.
func (c *Coordinator) Resume(ctx context.Context, mode Mode) *Briefing {
	b := &Briefing{GeneratedAt: time.Now(), Mode: mode}

	b.State = c.ambient.Read()
	if b.State.IsZero() {
		b.Notes = append(b.Notes, "no working state found")
	}

	if mode != ModeFull {
		c.merge(b)
		return b
	}

	var mu sync.Mutex
	addNote := func(format string, args ...interface{}) {
		mu.Lock()
		b.Notes = append(b.Notes, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		rec, id, err := c.latestCheckpoint()
		switch {
		case err != nil:
			addNote("checkpoint store unavailable: %v", err)
		case rec == nil:
			addNote("no checkpoint found")
		default:
			mu.Lock()
			b.Checkpoint = rec
			b.CheckpointID = id
			mu.Unlock()
		}
		return nil
	})

	eg.Go(func() error {
		gctx, cancel := context.WithTimeout(egCtx, c.sourceTimeout)
		defer cancel()
		sum, err := c.gitSnapshot(gctx, c.workspace)
		if err != nil {
			addNote("git unavailable: %v", err)
			return nil
		}
		mu.Lock()
		b.Git = sum
		mu.Unlock()
		return nil
	})

	eg.Go(func() error {
		if c.graph == nil || !c.graph.Enabled() {
			addNote("knowledge graph disabled")
			return nil
		}
		gctx, cancel := context.WithTimeout(egCtx, c.sourceTimeout)
		defer cancel()

		checkpoints, err := c.graph.SearchNodes(gctx, knowledge.CheckpointPrefix)
		if err != nil {
			addNote("knowledge graph unavailable: %v", err)
			return nil
		}
		blockers, err := c.graph.SearchNodes(gctx, knowledge.BlockerPrefix)
		if err != nil {
			addNote("knowledge graph blocker search failed: %v", err)
		}

		mu.Lock()
		b.GraphCheckpoints = checkpoints.Entities
		if blockers != nil {
			b.GraphBlockers = blockers.Entities
		}
		mu.Unlock()
		return nil
	})

	// Closures record failures as notes and return nil, so Wait
	// cannot fail.
	_ = eg.Wait()

	c.merge(b)
	c.logger.Debug("briefing assembled",
		zap.String("mode", string(mode)),
		zap.Int("degraded_sources", len(b.Notes)))
	return b
}

// latestCheckpoint bounds the store read so a hung filesystem cannot
// stall the whole resume.
func (c *Coordinator) latestCheckpoint() (*checkpoint.Record, string, error) {
	type result struct {
		rec *checkpoint.Record
		id  string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rec, id, err := c.checkpoints.Latest()
		ch <- result{rec, id, err}
	}()

	select {
	case r := <-ch:
		return r.rec, r.id, r.err
	case <-time.After(c.sourceTimeout):
		return nil, "", fmt.Errorf("timed out after %s", c.sourceTimeout)
	}
}

// merge resolves the scalar fields: ambient state wins, an empty slot
// falls through to the checkpoint, then to the repository. Graph data
// never fills scalars; it is supplementary only.
func (c *Coordinator) merge(b *Briefing) {
	b.Task = b.State.Task
	b.Branch = b.State.Branch
	b.Phase = b.State.Phase
	b.Progress = b.State.ProgressSummary
	b.NextStep = b.State.NextStep

	b.AttachCheckpoint(b.Checkpoint, b.CheckpointID)

	if b.Git != nil && b.Branch == "" {
		b.Branch = b.Git.Branch
	}
}
