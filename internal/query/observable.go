package query

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/klingon-exchange/walletstore/internal/reactive"
)

// ParseFunc decodes a raw response into the query's data type.
type ParseFunc[T any] func(raw *RawResponse) (T, error)

// Options tunes an ObservableQuery.
type Options struct {
	// CanFetch gates every fetch. Nil means always.
	CanFetch func() bool
	// CacheMaxAge is how old a response may be before a new observation
	// refetches it. Zero means any response is fresh enough.
	CacheMaxAge time.Duration
	// RefreshInterval refetches periodically while observed. Zero disables.
	RefreshInterval time.Duration
	// GCTimeout is how long an unobserved query keeps its fetch alive
	// before it is released and marked not started. Zero disables.
	GCTimeout time.Duration
	// Persist stores the last response in the context's KV store.
	Persist bool
}

// DefaultOptions returns the options used by the chain query packages.
func DefaultOptions() Options {
	return Options{
		CacheMaxAge: 30 * time.Second,
		GCTimeout:   60 * time.Second,
	}
}

// Response is a parsed successful payload.
type Response[T any] struct {
	Data      T
	Header    http.Header
	Timestamp time.Time
	// Staled is set for responses restored from storage or kept across a
	// GC cycle. They are shown but always revalidated.
	Staled bool
}

// ObservableQuery is one cached remote resource. Only its own methods
// mutate response, error and fetching state.
type ObservableQuery[T any] struct {
	shared *SharedContext
	req    Request
	key    string
	parse  ParseFunc[T]
	opts   Options

	subject reactive.Subject

	mu        sync.Mutex
	response  *Response[T]
	err       *Error
	fetching  int
	started   bool
	observers int
	restored  bool
	changed   chan struct{}
	life      context.Context
	cancel    context.CancelFunc
	gcTimer   *time.Timer
	stopTick  chan struct{}
}

// New creates an ObservableQuery. Nothing is fetched until it is observed
// or Fetch is called.
func New[T any](shared *SharedContext, req Request, parse ParseFunc[T], opts Options) *ObservableQuery[T] {
	q := &ObservableQuery[T]{
		shared:  shared,
		req:     req,
		key:     req.Key(),
		parse:   parse,
		opts:    opts,
		changed: make(chan struct{}),
	}
	q.life, q.cancel = context.WithCancel(context.Background())
	return q
}

// Key returns the request identity.
func (q *ObservableQuery[T]) Key() string { return q.key }

// Request returns the underlying request.
func (q *ObservableQuery[T]) Request() Request { return q.req }

// CanFetch reports whether the query is currently allowed to fetch.
func (q *ObservableQuery[T]) CanFetch() bool {
	return q.opts.CanFetch == nil || q.opts.CanFetch()
}

// Response returns the last successful response, or nil.
func (q *ObservableQuery[T]) Response() *Response[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.response
}

// Error returns the last failure, or nil after a success.
func (q *ObservableQuery[T]) Error() *Error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// IsFetching reports whether a request is outstanding.
func (q *ObservableQuery[T]) IsFetching() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fetching > 0
}

// IsStarted reports whether the query is observed or has been since its
// last GC.
func (q *ObservableQuery[T]) IsStarted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

// IsObserved reports whether anyone currently observes the query.
func (q *ObservableQuery[T]) IsObserved() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.observers > 0
}

// Subscribe registers fn for every state change.
func (q *ObservableQuery[T]) Subscribe(fn func()) func() {
	return q.subject.Subscribe(fn)
}

// Fetch issues or joins a request when CanFetch allows it. Failures are
// stored on the query and returned; the previous response is kept.
func (q *ObservableQuery[T]) Fetch(ctx context.Context) error {
	if !q.CanFetch() {
		return nil
	}

	q.mu.Lock()
	q.fetching++
	life := q.life
	q.mu.Unlock()
	q.notify()

	return q.run(ctx, life)
}

// run performs one fetch already counted in q.fetching.
func (q *ObservableQuery[T]) run(ctx, life context.Context) error {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(life, cancel)
	defer stop()

	raw, err := q.shared.Fetch(fctx, q.req)
	var data T
	if err == nil {
		data, err = q.parse(raw)
		if err != nil {
			err = AsError(err)
		}
	}

	q.mu.Lock()
	q.fetching--
	switch {
	case err == nil:
		if q.response == nil || !raw.Timestamp.Before(q.response.Timestamp) {
			q.response = &Response[T]{Data: data, Header: raw.Header, Timestamp: raw.Timestamp}
			q.err = nil
		}
	case fctx.Err() != nil:
		// Abandoned by the caller or by GC. Nothing to record.
	default:
		q.err = AsError(err)
	}
	q.mu.Unlock()
	q.notify()

	if err == nil && q.opts.Persist {
		q.shared.savePersisted(context.Background(), q.key, raw)
	}
	if err != nil && fctx.Err() != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// WaitResponse blocks until any response exists. It returns nil, nil when
// the query cannot fetch, and the stored error when a fetch it waited on
// failed without producing a response.
func (q *ObservableQuery[T]) WaitResponse(ctx context.Context) (*Response[T], error) {
	return q.wait(ctx, time.Time{})
}

// WaitFreshResponse blocks until a response newer than the call exists.
func (q *ObservableQuery[T]) WaitFreshResponse(ctx context.Context) (*Response[T], error) {
	return q.wait(ctx, time.Now())
}

func (q *ObservableQuery[T]) wait(ctx context.Context, since time.Time) (*Response[T], error) {
	for {
		q.mu.Lock()
		resp := q.response
		if resp != nil && !resp.Timestamp.Before(since) && (since.IsZero() || !resp.Staled) {
			q.mu.Unlock()
			return resp, nil
		}
		ch := q.changed
		fetching := q.fetching > 0
		q.mu.Unlock()

		if !q.CanFetch() {
			return nil, nil
		}

		if !fetching {
			if err := q.Fetch(ctx); err != nil {
				return nil, err
			}
			continue
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Observe marks the query observed. The first observer restores any
// persisted response and triggers a fetch when the data is absent or stale.
// The returned function releases the observation.
func (q *ObservableQuery[T]) Observe() (release func()) {
	q.restore()
	canFetch := q.CanFetch()

	q.mu.Lock()
	q.observers++
	first := q.observers == 1
	var needFetch bool
	if first {
		if q.gcTimer != nil {
			q.gcTimer.Stop()
			q.gcTimer = nil
		}
		if q.life.Err() != nil {
			q.life, q.cancel = context.WithCancel(context.Background())
		}
		q.started = true
		needFetch = canFetch && q.staleLocked()
		if needFetch {
			q.fetching++
		}
		if q.opts.RefreshInterval > 0 {
			q.stopTick = make(chan struct{})
			go q.refreshLoop(q.life, q.stopTick)
		}
	}
	life := q.life
	q.mu.Unlock()

	if needFetch {
		q.notify()
		go q.run(life, life)
	}

	var once sync.Once
	return func() { once.Do(q.unobserve) }
}

func (q *ObservableQuery[T]) staleLocked() bool {
	if q.response == nil || q.response.Staled {
		return true
	}
	if q.opts.CacheMaxAge > 0 && time.Since(q.response.Timestamp) > q.opts.CacheMaxAge {
		return true
	}
	return false
}

func (q *ObservableQuery[T]) unobserve() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers--
	if q.observers > 0 {
		return
	}
	if q.stopTick != nil {
		close(q.stopTick)
		q.stopTick = nil
	}
	if q.opts.GCTimeout > 0 {
		q.gcTimer = time.AfterFunc(q.opts.GCTimeout, q.collect)
	}
}

// collect releases the in-flight fetch and returns the query to not
// started. The cached response is kept but marked stale.
func (q *ObservableQuery[T]) collect() {
	q.mu.Lock()
	if q.observers > 0 {
		q.mu.Unlock()
		return
	}
	q.gcTimer = nil
	q.cancel()
	q.started = false
	if q.response != nil {
		staled := *q.response
		staled.Staled = true
		q.response = &staled
	}
	q.mu.Unlock()
	q.notify()
}

func (q *ObservableQuery[T]) refreshLoop(life context.Context, stop chan struct{}) {
	ticker := time.NewTicker(q.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-life.Done():
			return
		case <-ticker.C:
			if err := q.Fetch(life); err != nil && !errors.Is(err, context.Canceled) {
				q.shared.log.Debug("refresh failed", "key", q.key, "err", err)
			}
		}
	}
}

// Restore loads the persisted response, if any, without observing the
// query. It runs at most once.
func (q *ObservableQuery[T]) Restore() { q.restore() }

func (q *ObservableQuery[T]) restore() {
	q.mu.Lock()
	if q.restored || !q.opts.Persist {
		q.restored = true
		q.mu.Unlock()
		return
	}
	q.restored = true
	q.mu.Unlock()

	raw := q.shared.loadPersisted(context.Background(), q.key)
	if raw == nil {
		return
	}
	data, err := q.parse(raw)
	if err != nil {
		q.shared.log.Debug("discarding cached response", "key", q.key, "err", err)
		return
	}

	q.mu.Lock()
	if q.response == nil {
		q.response = &Response[T]{Data: data, Header: raw.Header, Timestamp: raw.Timestamp, Staled: true}
	}
	q.mu.Unlock()
	q.notify()
}

func (q *ObservableQuery[T]) notify() {
	q.mu.Lock()
	close(q.changed)
	q.changed = make(chan struct{})
	q.mu.Unlock()
	q.subject.Notify()
}
