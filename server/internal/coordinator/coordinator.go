package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/linkscore/linkscore/pkg/types"
	"github.com/linkscore/linkscore/server/internal/scoring"
	"github.com/linkscore/linkscore/server/internal/session"
)

// DefaultSubscriptionBuffer is the per-viewer queue depth when Options leaves it zero.
const DefaultSubscriptionBuffer = 64

// Sink is the outbound half of one page observer channel. Send must not
// block; it returns false when the message could not be queued.
type Sink interface {
	Send(msg any) bool
}

// Options tunes coordinator policy.
type Options struct {
	// ForgetOnClose drops a session as soon as its observer channel closes
	// instead of keeping it for late backfill.
	ForgetOnClose bool

	// SkipKnown answers candidates whose id and url already have a result in
	// the current query (or are being scored) from the cache instead of
	// scoring them again.
	SkipKnown bool

	// SubscriptionBuffer is the per-viewer queue depth.
	SubscriptionBuffer int
}

// Stats is a point-in-time view of coordinator activity.
type Stats struct {
	Channels           int
	Subscriptions      int
	Batches            int64
	CandidatesAccepted int64
	CandidatesDropped  int64
	CacheHits          int64
	ScoresOK           int64
	ScoresFailed       int64
	StaleDiscarded     int64
	DeliveriesDropped  int64
}

type counters struct {
	batches, accepted, dropped, cacheHits atomic.Int64
	ok, failed, stale, undelivered        atomic.Int64
}

// inflightKey identifies one scoring task for SkipKnown deduplication.
type inflightKey struct {
	session string
	gen     uint64
	id      string
	url     string
}

// Coordinator owns the observer channel registry and the viewer
// subscriptions, and is the only writer of the session store.
type Coordinator struct {
	store  *session.Store
	scorer scoring.Scorer
	opts   Options

	// mu orders store mutations with the notifications they produce.
	mu       sync.Mutex
	channels map[string]Sink
	subs     map[string]map[*Subscription]struct{}
	inflight map[inflightKey]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	stats counters
}

// New creates a Coordinator that writes to st and scores through scorer.
func New(st *session.Store, scorer scoring.Scorer, opts Options) *Coordinator {
	if opts.SubscriptionBuffer <= 0 {
		opts.SubscriptionBuffer = DefaultSubscriptionBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:    st,
		scorer:   scorer,
		opts:     opts,
		channels: make(map[string]Sink),
		subs:     make(map[string]map[*Subscription]struct{}),
		inflight: make(map[inflightKey]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnChannelOpen registers sink as the live observer channel for key and
// ensures a session exists. A channel already registered for key is replaced.
func (c *Coordinator) OnChannelOpen(key string, sink Sink) session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.channels[key]; ok && prev != sink {
		slog.Info("coordinator: channel replaced", "session", key)
	}
	c.channels[key] = sink
	return c.store.Attach(key)
}

// OnChannelClose deregisters sink for key. Unless ForgetOnClose is set the
// session is kept, detached, until the store's retention sweep removes it.
// Closing a channel that has already been replaced is a no-op.
func (c *Coordinator) OnChannelClose(key string, sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.channels[key]; !ok || cur != sink {
		return
	}
	delete(c.channels, key)

	if c.opts.ForgetOnClose {
		c.store.Forget(key)
		slog.Debug("coordinator: channel closed, session forgotten", "session", key)
		return
	}
	c.store.Detach(key)
	slog.Debug("coordinator: channel closed, session retained", "session", key)
}

// OnBatchReport filters out candidates without an id or url and starts one
// scoring task per remaining candidate. Tasks run concurrently with each
// other and with the caller; one failing never affects its siblings. It
// returns the number of tasks started.
func (c *Coordinator) OnBatchReport(key string, candidates []types.Candidate) int {
	valid, dropped := types.ValidCandidates(candidates)
	c.stats.dropped.Add(int64(dropped))
	if len(valid) == 0 {
		return 0
	}
	if !c.beginBatch() {
		slog.Debug("coordinator: batch refused after shutdown", "session", key)
		return 0
	}
	c.stats.batches.Add(1)

	gen := c.store.Ensure(key).Generation
	work := valid
	if c.opts.SkipKnown {
		work = c.claim(key, gen, valid)
	}
	c.stats.accepted.Add(int64(len(work)))
	if len(work) == 0 {
		c.tasks.Done()
		return 0
	}

	var g errgroup.Group
	for _, cand := range work {
		g.Go(func() error {
			c.score(key, gen, cand)
			return nil
		})
	}
	go func() {
		defer c.tasks.Done()
		g.Wait() //nolint:errcheck // tasks never return errors
		slog.Debug("coordinator: batch settled", "session", key, "candidates", len(work))
	}()

	slog.Debug("coordinator: batch dispatched",
		"session", key,
		"candidates", len(work),
		"dropped", dropped,
	)
	return len(work)
}

// beginBatch registers a batch task unless Shutdown has started. The check and
// the Add happen under c.mu so no Add can race the Wait in Shutdown.
func (c *Coordinator) beginBatch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	c.tasks.Add(1)
	return true
}

// OnQueryChanged resets the session for key to query, then tells subscribed
// viewers the results were cleared and announces the new query, in that order.
func (c *Coordinator) OnQueryChanged(key, query string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.ResetQuery(key, query)
	c.broadcastLocked(key, types.ResultsCleared{Type: types.TypeResultsCleared, SessionKey: key})
	c.broadcastLocked(key, types.QueryChanged{Type: types.TypeQueryChanged, SessionKey: key, Query: query})

	slog.Debug("coordinator: query changed", "session", key, "query", query)
}

// OnViewerAttach returns the current state of the session for key as a
// backfill message. Unknown keys yield an empty backfill.
func (c *Coordinator) OnViewerAttach(key string) types.BulkResults {
	snap, _ := c.store.Snapshot(key)
	return types.NewBulkResults(key, snap.Query, snap.Results)
}

// Wait blocks until every scoring task started so far has completed.
func (c *Coordinator) Wait() {
	c.tasks.Wait()
}

// Shutdown cancels in-flight scoring calls, waits for their tasks to settle
// (or ctx to expire) and closes every viewer subscription.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.tasks.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("coordinator: shutdown: %w", ctx.Err())
	}

	c.mu.Lock()
	for key, set := range c.subs {
		for sub := range set {
			sub.close()
		}
		delete(c.subs, key)
	}
	c.mu.Unlock()
	return err
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	channels := len(c.channels)
	subs := 0
	for _, set := range c.subs {
		subs += len(set)
	}
	c.mu.Unlock()

	return Stats{
		Channels:           channels,
		Subscriptions:      subs,
		Batches:            c.stats.batches.Load(),
		CandidatesAccepted: c.stats.accepted.Load(),
		CandidatesDropped:  c.stats.dropped.Load(),
		CacheHits:          c.stats.cacheHits.Load(),
		ScoresOK:           c.stats.ok.Load(),
		ScoresFailed:       c.stats.failed.Load(),
		StaleDiscarded:     c.stats.stale.Load(),
		DeliveriesDropped:  c.stats.undelivered.Load(),
	}
}

// --- internal ---------------------------------------------------------------

// score runs one candidate's lifecycle: backend call, then commit.
func (c *Coordinator) score(key string, gen uint64, cand types.Candidate) {
	r := types.ScoredResult{
		ID:    cand.ID,
		Title: cand.Title,
		URL:   cand.URL,
		Score: types.Unavailable,
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("coordinator: scoring task panicked", "session", key, "id", cand.ID, "panic", p)
			c.stats.failed.Add(1)
			r.Score, r.Reason = types.Unavailable, ""
			c.commit(key, gen, r)
		}
	}()

	res, err := c.scorer.Score(c.ctx, cand.URL)
	if err != nil {
		c.stats.failed.Add(1)
		slog.Warn("coordinator: scoring failed", "session", key, "id", cand.ID, "url", cand.URL, "err", err)
	} else {
		c.stats.ok.Add(1)
		r.Score = types.NormalizeScore(res.Score)
		r.Reason = res.Reason
	}
	c.commit(key, gen, r)
}

// commit stores r and, if the write landed, notifies the observer channel and
// the viewers of key.
func (c *Coordinator) commit(key string, gen uint64, r types.ScoredResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.SkipKnown {
		delete(c.inflight, inflightKey{key, gen, r.ID, r.URL})
	}

	if _, ok := c.store.UpsertIf(key, gen, r); !ok {
		c.stats.stale.Add(1)
		slog.Debug("coordinator: discarded result for superseded session", "session", key, "id", r.ID)
		return
	}

	c.sendLocked(key, types.NewTagUpdate(r))
	c.broadcastLocked(key, types.NewResultDelta(key, r))
}

// claim splits valid into candidates that need scoring and candidates that
// are already known for this generation. Known ones are answered from the
// cache with a tag-update.
func (c *Coordinator) claim(key string, gen uint64, valid []types.Candidate) []types.Candidate {
	snap, _ := c.store.Snapshot(key)
	known := make(map[string]types.ScoredResult, len(snap.Results))
	if snap.Generation == gen {
		for _, r := range snap.Results {
			known[r.ID] = r
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	work := make([]types.Candidate, 0, len(valid))
	for _, cand := range valid {
		if r, ok := known[cand.ID]; ok && r.URL == cand.URL {
			c.stats.cacheHits.Add(1)
			c.sendLocked(key, types.NewTagUpdate(r))
			continue
		}
		k := inflightKey{key, gen, cand.ID, cand.URL}
		if _, busy := c.inflight[k]; busy {
			c.stats.cacheHits.Add(1)
			continue
		}
		c.inflight[k] = struct{}{}
		work = append(work, cand)
	}
	return work
}

// sendLocked delivers msg to the observer channel for key, if one is open.
func (c *Coordinator) sendLocked(key string, msg any) {
	sink, ok := c.channels[key]
	if !ok {
		return
	}
	if !sink.Send(msg) {
		c.stats.undelivered.Add(1)
		slog.Debug("coordinator: channel send dropped", "session", key)
	}
}
