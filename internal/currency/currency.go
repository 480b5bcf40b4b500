// Package currency holds the currency registrars that resolve ERC-20, CW20
// and IBC denominations no chain lists statically.
package currency

import (
	"context"
	"sync"
	"time"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// FetchTimeout bounds a background metadata fetch.
const FetchTimeout = 30 * time.Second

// RetryInterval is how long a failed metadata lookup is reported as
// unknown before it is issued again.
const RetryInterval = 30 * time.Second

// Notifier is told when a background resolution finished so that callers
// of chain.Store.FindCurrency ask again.
type Notifier interface {
	NotifyChanged()
}

// background runs at most one metadata fetch per key.
type background struct {
	notifier Notifier
	log      *logging.Logger
	retry    time.Duration

	mu      sync.Mutex
	pending map[string]bool
}

func newBackground(notifier Notifier, log *logging.Logger) *background {
	return &background{notifier: notifier, log: log, retry: RetryInterval, pending: make(map[string]bool)}
}

// settle reports a lookup that has no response yet. A failure younger than
// the retry interval resolves to unknown; otherwise the fetch is (re)issued
// and the lookup stays in progress.
func (b *background) settle(key string, failure *query.Error, fetching bool, fetch func(ctx context.Context) error) *chain.RegistrarResult {
	if failure != nil && !fetching && !b.isPending(key) && time.Since(failure.Timestamp) < b.retry {
		return &chain.RegistrarResult{Done: true}
	}
	b.start(key, fetch)
	return &chain.RegistrarResult{Done: false}
}

// start runs fetch unless one is already running for key.
func (b *background) start(key string, fetch func(ctx context.Context) error) {
	b.mu.Lock()
	if b.pending[key] {
		b.mu.Unlock()
		return
	}
	b.pending[key] = true
	b.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), FetchTimeout)
		defer cancel()
		if err := fetch(ctx); err != nil {
			b.log.Debug("currency lookup failed", "key", key, "err", err)
		}
		b.mu.Lock()
		delete(b.pending, key)
		b.mu.Unlock()
		if b.notifier != nil {
			b.notifier.NotifyChanged()
		}
	}()
}

func (b *background) isPending(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[key]
}
