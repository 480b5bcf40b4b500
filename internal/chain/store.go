package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/klingon-exchange/walletstore/internal/reactive"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// Getter looks up chain descriptions and their currencies.
type Getter interface {
	Get(chainID string) (*ChainInfo, error)
	Has(chainID string) bool
	FindCurrency(chainID, denom string) (*Currency, bool)
}

// ForceFindCurrency returns the known currency for denom, or a raw
// placeholder with zero decimals so amounts can still be shown.
func ForceFindCurrency(g Getter, chainID, denom string) Currency {
	if cur, _ := g.FindCurrency(chainID, denom); cur != nil {
		return *cur
	}
	return Currency{CoinDenom: denom, CoinMinimalDenom: denom}
}

// RegistrarResult is the answer of a Registrar that recognised a denom.
// Done false means resolution is still in progress and the caller should
// ask again after the next change notification.
type RegistrarResult struct {
	Value *Currency
	Done  bool
}

// Registrar resolves a denomination no chain lists statically. It returns
// nil when the denom is not its concern.
type Registrar func(chainID, coinMinimalDenom string) *RegistrarResult

// Store holds chain descriptions and resolves currencies.
type Store struct {
	log     *logging.Logger
	subject reactive.Subject

	mu         sync.RWMutex
	chains     map[string]*ChainInfo
	registrars []Registrar
}

// NewStore creates a Store seeded with infos. Invalid infos are skipped
// with a warning.
func NewStore(infos ...ChainInfo) *Store {
	s := &Store{
		log:    logging.GetDefault().Component("chain"),
		chains: make(map[string]*ChainInfo),
	}
	for _, info := range infos {
		if err := s.Add(info); err != nil {
			s.log.Warn("skipping chain", "chain", info.ChainID, "err", err)
		}
	}
	return s
}

// Add validates and stores info, replacing any chain with the same
// identifier.
func (s *Store) Add(info ChainInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	id := Identifier(info.ChainID)
	s.chains[id] = &info
	s.mu.Unlock()
	s.subject.Notify()
	return nil
}

// Get returns the chain for chainID.
func (s *Store) Get(chainID string) (*ChainInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.chains[Identifier(chainID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}
	return info, nil
}

// Has reports whether chainID is known.
func (s *Store) Has(chainID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chains[Identifier(chainID)]
	return ok
}

// List returns every chain sorted by chain id.
func (s *Store) List() []*ChainInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ChainInfo, 0, len(s.chains))
	for _, info := range s.chains {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// AddRegistrar appends r. Registrars are consulted in registration order.
func (s *Store) AddRegistrar(r Registrar) {
	s.mu.Lock()
	s.registrars = append(s.registrars, r)
	s.mu.Unlock()
}

// Subscribe is fired when chains change or a registrar finishes work.
func (s *Store) Subscribe(fn func()) func() {
	return s.subject.Subscribe(fn)
}

// NotifyChanged tells waiters to ask registrars again.
func (s *Store) NotifyChanged() {
	s.subject.Notify()
}

// FindCurrency resolves denom on chainID. Registrar answers are not cached
// here; each registrar owns its cache and expiry. done is false while a registrar
// is still working; a nil currency with done true means nobody knows it.
func (s *Store) FindCurrency(chainID, denom string) (cur *Currency, done bool) {
	info, err := s.Get(chainID)
	if err != nil {
		return nil, true
	}
	if c, ok := info.FindStaticCurrency(denom); ok {
		return &c, true
	}

	s.mu.RLock()
	registrars := append([]Registrar(nil), s.registrars...)
	s.mu.RUnlock()

	for _, r := range registrars {
		res := r(info.ChainID, denom)
		if res == nil {
			continue
		}
		return res.Value, res.Done
	}
	return nil, true
}

// RequireCurrency is FindCurrency for callers that treat an unknown or
// pending currency as a configuration error.
func (s *Store) RequireCurrency(chainID, denom string) (*Currency, error) {
	cur, _ := s.FindCurrency(chainID, denom)
	if cur == nil {
		return nil, fmt.Errorf("%w: %s on %s", ErrCurrencyNotFound, denom, chainID)
	}
	return cur, nil
}

// WaitCurrency blocks until registrars finish resolving denom.
func (s *Store) WaitCurrency(ctx context.Context, chainID, denom string) (*Currency, error) {
	changed := make(chan struct{}, 1)
	unsub := s.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsub()

	for {
		cur, done := s.FindCurrency(chainID, denom)
		if done {
			if cur == nil {
				return nil, fmt.Errorf("%w: %s on %s", ErrCurrencyNotFound, denom, chainID)
			}
			return cur, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var _ Getter = (*Store)(nil)
