// Package query implements the cached, observable remote-data layer: a
// process-wide SharedContext that de-duplicates requests, ObservableQuery
// values that fetch on observation, and memoized query maps.
package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klingon-exchange/walletstore/internal/storage"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// DefaultHTTPTimeout bounds every request issued by a SharedContext.
const DefaultHTTPTimeout = 30 * time.Second

// maxBodySize caps response bodies read into memory.
const maxBodySize = 16 << 20

// RawResponse is a completed HTTP exchange shared by every waiter of a key.
type RawResponse struct {
	Status    int         `json:"status"`
	Header    http.Header `json:"header,omitempty"`
	Body      []byte      `json:"body"`
	Timestamp time.Time   `json:"timestamp"`
}

// ContextOptions configures a SharedContext.
type ContextOptions struct {
	HTTPClient *http.Client
	// Store persists responses of queries created with Persist set.
	Store      storage.KVStore
	Registerer prometheus.Registerer
	Logger     *logging.Logger
}

// SharedContext owns the in-flight request table. Create one per process and
// hand it to every query constructor.
type SharedContext struct {
	client  *http.Client
	store   storage.KVStore
	metrics *Metrics
	log     *logging.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	done   chan struct{}
	resp   *RawResponse
	err    error
	refs   int
	cancel context.CancelFunc
}

// NewSharedContext creates a SharedContext.
func NewSharedContext(opts ContextOptions) *SharedContext {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	log := opts.Logger
	if log == nil {
		log = logging.GetDefault()
	}
	return &SharedContext{
		client:   client,
		store:    opts.Store,
		metrics:  NewMetrics(opts.Registerer),
		log:      log.Component("query"),
		inflight: make(map[string]*call),
	}
}

// Metrics exposes the context counters.
func (s *SharedContext) Metrics() *Metrics {
	return s.metrics
}

// Store returns the persistence store, which may be nil.
func (s *SharedContext) Store() storage.KVStore {
	return s.store
}

// Fetch performs req, joining an identical request already in flight. The
// underlying transport call is cancelled only once every waiter has gone.
func (s *SharedContext) Fetch(ctx context.Context, req Request) (*RawResponse, error) {
	key := req.Key()

	s.mu.Lock()
	c, ok := s.inflight[key]
	if ok {
		c.refs++
		s.metrics.Deduplicated.Inc()
	} else {
		cctx, cancel := context.WithCancel(context.Background())
		c = &call{done: make(chan struct{}), refs: 1, cancel: cancel}
		s.inflight[key] = c
		go s.run(cctx, key, req, c)
	}
	s.mu.Unlock()

	select {
	case <-c.done:
		s.release(key, c, false)
		return c.resp, c.err
	case <-ctx.Done():
		s.release(key, c, true)
		return nil, ctx.Err()
	}
}

func (s *SharedContext) release(key string, c *call, abandon bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.refs--
	if abandon && c.refs == 0 {
		c.cancel()
		if s.inflight[key] == c {
			delete(s.inflight, key)
		}
		s.log.Debug("request abandoned", "key", key)
	}
}

func (s *SharedContext) run(ctx context.Context, key string, req Request, c *call) {
	host := req.Host()
	s.metrics.Requests.WithLabelValues(host).Inc()
	s.metrics.Inflight.Inc()
	defer s.metrics.Inflight.Dec()

	resp, err := s.roundTrip(ctx, req)
	if err != nil {
		kind := "unknown"
		var qe *Error
		if errors.As(err, &qe) {
			kind = string(qe.Kind)
		}
		s.metrics.Failures.WithLabelValues(host, kind).Inc()
		s.log.Debug("request failed", "key", key, "err", err)
	}

	s.mu.Lock()
	if s.inflight[key] == c {
		delete(s.inflight, key)
	}
	s.mu.Unlock()

	c.resp, c.err = resp, err
	close(c.done)
	c.cancel()
}

func (s *SharedContext) roundTrip(ctx context.Context, req Request) (*RawResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL(), body)
	if err != nil {
		return nil, newError(KindNetwork, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KindCanceled, ctx.Err())
		}
		return nil, newError(KindNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, newError(KindNetwork, fmt.Errorf("failed to read body: %w", err))
	}

	if resp.StatusCode >= 400 {
		msg := string(data)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, &Error{
			Kind:      KindHTTP,
			Status:    resp.StatusCode,
			Message:   msg,
			Timestamp: time.Now(),
		}
	}

	return &RawResponse{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      data,
		Timestamp: time.Now(),
	}, nil
}

// PersistPrefix namespaces persisted responses in the KV store.
const PersistPrefix = "query/"

func persistKey(key string) string {
	return PersistPrefix + key
}

func (s *SharedContext) loadPersisted(ctx context.Context, key string) *RawResponse {
	if s.store == nil {
		return nil
	}
	raw, ok, err := storage.GetJSON[RawResponse](ctx, s.store, persistKey(key))
	if err != nil {
		s.log.Warn("failed to load cached response", "key", key, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &raw
}

func (s *SharedContext) savePersisted(ctx context.Context, key string, raw *RawResponse) {
	if s.store == nil {
		return
	}
	if err := storage.SetJSON(ctx, s.store, persistKey(key), raw); err != nil {
		s.log.Warn("failed to persist response", "key", key, "err", err)
	}
}

// refs reports the waiter count of an in-flight key.
func (s *SharedContext) refs(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.inflight[key]; ok {
		return c.refs
	}
	return 0
}
