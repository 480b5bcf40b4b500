package balance

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
)

type setKey struct {
	chainID string
	address string
}

// Queries dispatches balance lookups to registries and memoizes the
// per-(chain, address) sets.
type Queries struct {
	chains chain.Getter

	mu         sync.RWMutex
	registries []Registry
	sets       *query.Map[setKey, *Set]
}

// NewQueries creates Queries consulting registries in the given order.
func NewQueries(chains chain.Getter, registries ...Registry) *Queries {
	q := &Queries{chains: chains, registries: registries}
	q.sets = query.NewMap(func(k setKey) *Set {
		return &Set{
			parent:  q,
			chainID: k.chainID,
			address: k.address,
			impls: query.NewMap(func(denom string) Impl {
				return q.GetBalanceImpl(k.chainID, k.address, denom)
			}),
		}
	})
	return q
}

// AddRegistry appends r after every registry already present.
func (q *Queries) AddRegistry(r Registry) {
	q.mu.Lock()
	q.registries = append(q.registries, r)
	q.mu.Unlock()
}

// GetBalanceImpl returns the first non-nil answer among the registries.
func (q *Queries) GetBalanceImpl(chainID, address, denom string) Impl {
	q.mu.RLock()
	registries := append([]Registry(nil), q.registries...)
	q.mu.RUnlock()

	for _, r := range registries {
		if impl := r.GetBalanceImpl(chainID, q.chains, address, denom); impl != nil {
			return impl
		}
	}
	return nil
}

// For returns the memoized balance set of address on chainID.
func (q *Queries) For(chainID, address string) *Set {
	if info, err := q.chains.Get(chainID); err == nil {
		chainID = info.ChainID
	}
	return q.sets.Get(setKey{chainID: chainID, address: address})
}

// Set is every balance of one address on one chain.
type Set struct {
	parent  *Queries
	chainID string
	address string
	impls   *query.Map[string, Impl]
}

// ChainID returns the chain the set belongs to.
func (s *Set) ChainID() string { return s.chainID }

// Address returns the owner address.
func (s *Set) Address() string { return s.address }

// Impl returns the memoized impl for denom, or nil when no registry
// handles it.
func (s *Set) Impl(denom string) Impl {
	return s.impls.Get(denom)
}

// Balance returns the balance of denom. Unhandled denoms are never ready.
func (s *Set) Balance(denom string) Balance {
	if impl := s.Impl(denom); impl != nil {
		return impl.Balance()
	}
	return NotReady(chain.ForceFindCurrency(s.parent.chains, s.chainID, denom))
}

// Balances returns the balance of every currency the chain lists, skipping
// denoms no registry handles.
func (s *Set) Balances() []Balance {
	info, err := s.parent.chains.Get(s.chainID)
	if err != nil {
		return nil
	}
	out := make([]Balance, 0, len(info.Currencies))
	for _, cur := range info.Currencies {
		if impl := s.Impl(cur.CoinMinimalDenom); impl != nil {
			out = append(out, impl.Balance())
		}
	}
	return out
}

// Stakable returns the balance of the chain's stake currency.
func (s *Set) Stakable() (Balance, error) {
	info, err := s.parent.chains.Get(s.chainID)
	if err != nil {
		return Balance{}, err
	}
	cur, err := info.NativeCurrency()
	if err != nil {
		return Balance{}, err
	}
	return s.Balance(cur.CoinMinimalDenom), nil
}

// Observe observes every listed currency and returns one release function.
func (s *Set) Observe() func() {
	info, err := s.parent.chains.Get(s.chainID)
	if err != nil {
		return func() {}
	}
	var releases []func()
	for _, cur := range info.Currencies {
		if impl := s.Impl(cur.CoinMinimalDenom); impl != nil {
			releases = append(releases, impl.Observe())
		}
	}
	return func() {
		for _, r := range releases {
			r()
		}
	}
}

// Fetch refreshes every listed currency concurrently.
func (s *Set) Fetch(ctx context.Context) error {
	info, err := s.parent.chains.Get(s.chainID)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, cur := range info.Currencies {
		impl := s.Impl(cur.CoinMinimalDenom)
		if impl == nil {
			continue
		}
		g.Go(func() error { return impl.Fetch(ctx) })
	}
	return g.Wait()
}
