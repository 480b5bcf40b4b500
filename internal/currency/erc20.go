package currency

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/evm"
	"github.com/klingon-exchange/walletstore/internal/storage"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// ERC20TTL is how long resolved token metadata is trusted.
const ERC20TTL = 24 * time.Hour

// CacheEntry is a resolved currency and when it was resolved.
type CacheEntry struct {
	Currency  chain.Currency `json:"currency"`
	Timestamp time.Time      `json:"timestamp"`
}

// ERC20Registrar resolves "erc20:<contract>" on EVM-capable chains from the
// token's symbol() and decimals(). Results are cached in memory and in the
// KV store for ERC20TTL; expired entries are removed on access.
type ERC20Registrar struct {
	evms *evm.Store
	kv   storage.KVStore
	ttl  time.Duration
	now  func() time.Time
	bg   *background
	log  *logging.Logger

	mu    sync.Mutex
	cache map[string]CacheEntry
}

// NewERC20Registrar creates the registrar. kv may be nil.
func NewERC20Registrar(evms *evm.Store, notifier Notifier, kv storage.KVStore) *ERC20Registrar {
	log := logging.GetDefault().Component("currency")
	return &ERC20Registrar{
		evms:  evms,
		kv:    kv,
		ttl:   ERC20TTL,
		now:   time.Now,
		bg:    newBackground(notifier, log),
		log:   log,
		cache: make(map[string]CacheEntry),
	}
}

func erc20CacheKey(chainID, contract string) string {
	return "currency/erc20/" + chain.Identifier(chainID) + "/" + strings.ToLower(contract)
}

// Resolve implements chain.Registrar.
func (r *ERC20Registrar) Resolve(chainID, denom string) *chain.RegistrarResult {
	kind, contract := chain.SplitDenom(denom)
	if kind != evm.ERC20Prefix || evm.ValidateAddress(contract) != nil {
		return nil
	}
	q, err := r.evms.Get(chainID)
	if err != nil {
		return nil
	}

	key := erc20CacheKey(chainID, contract)
	if entry, ok := r.lookup(key); ok {
		cur := entry.Currency
		return &chain.RegistrarResult{Value: &cur, Done: true}
	}

	tokenQuery := q.TokenInfo(contract)
	if resp := tokenQuery.Response(); resp != nil && !resp.Staled && r.now().Sub(resp.Timestamp) <= r.ttl {
		entry := CacheEntry{
			Currency: chain.Currency{
				CoinDenom:        resp.Data.Symbol,
				CoinMinimalDenom: denom,
				CoinDecimals:     resp.Data.Decimals,
			},
			Timestamp: r.now(),
		}
		r.store(key, entry)
		cur := entry.Currency
		return &chain.RegistrarResult{Value: &cur, Done: true}
	}

	return r.bg.settle(key, tokenQuery.Error(), tokenQuery.IsFetching(), tokenQuery.Fetch)
}

// lookup returns a live entry from memory or the KV store, deleting it
// when it has expired.
func (r *ERC20Registrar) lookup(key string) (CacheEntry, bool) {
	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()

	if !ok && r.kv != nil {
		stored, found, err := storage.GetJSON[CacheEntry](context.Background(), r.kv, key)
		if err != nil {
			r.log.Warn("failed to read currency cache", "key", key, "err", err)
		}
		entry, ok = stored, found
	}
	if !ok {
		return CacheEntry{}, false
	}
	if r.now().Sub(entry.Timestamp) > r.ttl {
		r.evict(key)
		return CacheEntry{}, false
	}

	r.mu.Lock()
	r.cache[key] = entry
	r.mu.Unlock()
	return entry, true
}

func (r *ERC20Registrar) store(key string, entry CacheEntry) {
	r.mu.Lock()
	r.cache[key] = entry
	r.mu.Unlock()
	if r.kv == nil {
		return
	}
	if err := storage.SetJSON(context.Background(), r.kv, key, entry); err != nil {
		r.log.Warn("failed to persist currency", "key", key, "err", err)
	}
}

func (r *ERC20Registrar) evict(key string) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
	if r.kv == nil {
		return
	}
	if err := r.kv.Delete(context.Background(), key); err != nil {
		r.log.Warn("failed to delete expired currency", "key", key, "err", err)
	}
}

// Cached returns the live cache entry of a contract, if any.
func (r *ERC20Registrar) Cached(chainID, contract string) (CacheEntry, bool) {
	return r.lookup(erc20CacheKey(chainID, contract))
}
