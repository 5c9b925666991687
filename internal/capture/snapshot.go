package capture

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// Bounded row limits for the grounding reads.
const (
	limitOpenTasks = 20
	limitProjects  = 10
	limitAreas     = 10
	limitResources = 10
	limitFacts     = 5
	limitLessons   = 5
)

// Loader gathers the grounding snapshot in a parallel fan-out. Every
// sub-read defaults to empty on error; a degraded snapshot never fails
// the run.
type Loader struct {
	store              ContextStore
	conversationWindow time.Duration
	conversationTurns  int
}

// NewLoader creates a context loader.
func NewLoader(store ContextStore, window time.Duration, turns int) *Loader {
	return &Loader{store: store, conversationWindow: window, conversationTurns: turns}
}

// Load fans out the grounding reads and waits for all of them. There is no
// ordering guarantee among the reads; each one that fails is logged and
// leaves its slice empty.
func (l *Loader) Load(ctx context.Context, channel string) *GroundingSnapshot {
	ctx, span := tracer.Start(ctx, "capture.load_context")
	defer span.End()

	snap := &GroundingSnapshot{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(l.sub(ctx, "open_tasks", func(ctx context.Context) (err error) {
		snap.OpenTasks, err = l.store.ListOpenTasks(ctx, limitOpenTasks)
		return err
	}))
	g.Go(l.sub(ctx, "projects", func(ctx context.Context) (err error) {
		snap.Projects, err = l.store.ListRecent(ctx, para.CollectionProjects, limitProjects)
		return err
	}))
	g.Go(l.sub(ctx, "areas", func(ctx context.Context) (err error) {
		snap.Areas, err = l.store.ListRecent(ctx, para.CollectionAreas, limitAreas)
		return err
	}))
	g.Go(l.sub(ctx, "resources", func(ctx context.Context) (err error) {
		snap.Resources, err = l.store.ListRecent(ctx, para.CollectionResources, limitResources)
		return err
	}))
	g.Go(l.sub(ctx, "accounts", func(ctx context.Context) (err error) {
		snap.Accounts, err = l.store.ListAccounts(ctx)
		return err
	}))
	g.Go(l.sub(ctx, "modules", func(ctx context.Context) (err error) {
		snap.Modules, err = l.store.ListModules(ctx)
		return err
	}))
	g.Go(l.sub(ctx, "turns", func(ctx context.Context) (err error) {
		since := time.Now().Add(-l.conversationWindow)
		snap.Turns, err = l.store.RecentTurns(ctx, channel, since, l.conversationTurns)
		return err
	}))
	g.Go(l.sub(ctx, "knowledge", func(ctx context.Context) (err error) {
		snap.Facts, err = l.store.ListKnowledge(ctx, para.KnowledgeFact, limitFacts)
		if err != nil {
			return err
		}
		snap.Lessons, err = l.store.ListKnowledge(ctx, para.KnowledgeLesson, limitLessons)
		return err
	}))

	// sub() swallows every error, so Wait always returns nil.
	_ = g.Wait()
	return snap
}

// sub wraps a grounding read so its failure is logged and swallowed rather
// than cancelling the sibling reads through the errgroup.
func (l *Loader) sub(ctx context.Context, name string, fn func(ctx context.Context) error) func() error {
	return func() error {
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Str("read", name).Msg("context_read_failed")
		}
		return nil
	}
}
