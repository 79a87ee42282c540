// Package statscache serves vacancy statistics to the dashboard. It hides the
// count/aggregate/paginate cycle behind a cached, de-duplicated Get.
package statscache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"edustat-engine/internal/domain"
	"edustat-engine/internal/events"
	"edustat-engine/internal/source"
	"edustat-engine/internal/stats"
)

const (
	PathServer = "server"
	PathPaged  = "paged"
)

// Publisher receives stats_updated/stats_failed events. *events.Hub fits.
type Publisher interface {
	Publish(evt string)
}

type Options struct {
	StaleAfter       time.Duration
	PageSize         int
	MaxPages         int
	PageTimeout      time.Duration
	CycleTimeout     time.Duration
	Imputation       stats.Imputation
	FailOnTruncation bool

	// RetryAfter is how long Peek waits after a failed cycle before it
	// starts another one on its own.
	RetryAfter time.Duration

	// OnPage reports fallback pagination progress.
	OnPage func(page, fetched int)
	Clock  func() time.Time
}

// Snapshot is what consumers render. Result is always a complete cycle's
// output (or the empty result before the first success).
type Snapshot struct {
	Result    domain.AggregateResult `json:"result"`
	FetchedAt *time.Time             `json:"fetchedAt"`
	Path      string                 `json:"path,omitempty"`
	Loading   bool                   `json:"loading"`
	Stale     bool                   `json:"stale"`
	Failure   *Failure               `json:"error,omitempty"`
}

// cycle is the sort-independent output of one fetch cycle.
type cycle struct {
	summaries   []domain.CategorySummary
	total       int
	lastUpdated *time.Time
	truncated   bool
	path        string
}

type flight struct {
	done    chan struct{}
	waiters int
	cancel  context.CancelFunc
	err     error
}

type Adapter struct {
	src  source.RecordSource
	opts Options
	pub  Publisher

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu        sync.Mutex
	cur       *cycle
	fetchedAt time.Time
	invalid   bool
	failure   *Failure
	failedAt  time.Time
	inflight  *flight
}

func New(src source.RecordSource, opts Options, pub Publisher) *Adapter {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Imputation == "" {
		opts.Imputation = stats.ImputeNone
	}
	base, stop := context.WithCancel(context.Background())
	return &Adapter{src: src, opts: opts, pub: pub, base: base, stop: stop}
}

// Close aborts any in-flight cycle and waits for it to unwind.
func (a *Adapter) Close() {
	a.stop()
	a.wg.Wait()
}

// Get returns a snapshot no older than the staleness window, running a fetch
// cycle if needed. Concurrent callers share one cycle. If ctx ends first, Get
// returns whatever is cached along with ctx.Err(); the cycle is cancelled once
// no caller is waiting for it.
func (a *Adapter) Get(ctx context.Context, by stats.SortBy) (Snapshot, error) {
	return a.get(ctx, by, false)
}

// Refresh is Get without the staleness check.
func (a *Adapter) Refresh(ctx context.Context, by stats.SortBy) (Snapshot, error) {
	return a.get(ctx, by, true)
}

func (a *Adapter) get(ctx context.Context, by stats.SortBy, force bool) (Snapshot, error) {
	a.mu.Lock()
	if !force && a.freshLocked() {
		snap := a.snapshotLocked(by)
		a.mu.Unlock()
		return snap, nil
	}
	f := a.joinLocked()
	a.mu.Unlock()

	select {
	case <-f.done:
		return a.snapshot(by), f.err
	case <-ctx.Done():
		a.leave(f)
		return a.snapshot(by), ctx.Err()
	}
}

func (a *Adapter) snapshot(by stats.SortBy) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(by)
}

// Peek never blocks. When the cache is stale and nothing is in flight it
// starts a background cycle and reports Loading.
func (a *Adapter) Peek(by stats.SortBy) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.freshLocked() && a.inflight == nil && a.retryableLocked() {
		a.joinLocked()
	}
	return a.snapshotLocked(by)
}

// Invalidate marks the cached result stale without dropping it.
func (a *Adapter) Invalidate() {
	a.mu.Lock()
	a.invalid = true
	a.failure = nil
	a.mu.Unlock()
}

func (a *Adapter) freshLocked() bool {
	return a.cur != nil && !a.invalid && a.opts.Clock().Sub(a.fetchedAt) < a.opts.StaleAfter
}

// retryableLocked keeps Peek from hammering a failing backend.
func (a *Adapter) retryableLocked() bool {
	return a.failure == nil || a.opts.Clock().Sub(a.failedAt) >= a.opts.RetryAfter
}

func (a *Adapter) snapshotLocked(by stats.SortBy) Snapshot {
	snap := Snapshot{
		Loading: a.inflight != nil,
		Stale:   !a.freshLocked(),
		Failure: a.failure,
	}
	if a.cur == nil {
		snap.Result = stats.Summarize(nil, by)
		return snap
	}

	c := a.cur
	snap.Result = stats.Summarize(c.summaries, by)
	snap.Result.TotalRecords = c.total
	snap.Result.LastUpdated = c.lastUpdated
	snap.Result.Truncated = c.truncated
	snap.Path = c.path
	at := a.fetchedAt
	snap.FetchedAt = &at
	return snap
}

// joinLocked attaches the caller to the in-flight cycle, starting one if
// needed.
func (a *Adapter) joinLocked() *flight {
	if f := a.inflight; f != nil {
		f.waiters++
		return f
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if a.opts.CycleTimeout > 0 {
		ctx, cancel = context.WithTimeout(a.base, a.opts.CycleTimeout)
	} else {
		ctx, cancel = context.WithCancel(a.base)
	}
	f := &flight{done: make(chan struct{}), waiters: 1, cancel: cancel}
	a.inflight = f
	a.wg.Add(1)
	go a.run(ctx, f)
	return f
}

func (a *Adapter) leave(f *flight) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	select {
	case <-f.done:
		return
	default:
	}
	f.cancel()
	if a.inflight == f {
		a.inflight = nil
	}
}

func (a *Adapter) run(ctx context.Context, f *flight) {
	defer a.wg.Done()
	defer f.cancel()

	start := time.Now()
	c, err := a.fetchCycle(ctx)
	abandoned := errors.Is(err, context.Canceled) && a.base.Err() == nil

	var failure *Failure
	a.mu.Lock()
	switch {
	case err == nil:
		a.cur = &c
		a.fetchedAt = a.opts.Clock()
		a.invalid = false
		a.failure = nil
	case abandoned:
		// Every caller left; keep the previous state untouched.
	default:
		failure = classify(err)
		a.failure = failure
		a.failedAt = a.opts.Clock()
	}
	if a.inflight == f {
		a.inflight = nil
	}
	f.err = err
	a.mu.Unlock()
	close(f.done)

	dur := time.Since(start).Milliseconds()
	switch {
	case err == nil:
		log.Printf("[stats] cycle ok path=%s total=%d categories=%d truncated=%v dur_ms=%d",
			c.path, c.total, len(c.summaries), c.truncated, dur)
		a.publish(events.TypeStatsUpdated, map[string]any{"path": c.path, "total": c.total, "truncated": c.truncated})
	case abandoned:
		log.Printf("[stats] cycle abandoned dur_ms=%d", dur)
	default:
		log.Printf("[stats] cycle error: %v dur_ms=%d", err, dur)
		a.publish(events.TypeStatsFailed, failure)
	}
}

func (a *Adapter) publish(typ string, data any) {
	if a.pub == nil {
		return
	}
	a.pub.Publish(events.MakeEvent("", typ, 1, data))
}
