// Package queries composes the per-protocol query stores, balance
// registries and currency registrars into one per-chain entry point.
package queries

import (
	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/bitcoin"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
	"github.com/klingon-exchange/walletstore/internal/currency"
	"github.com/klingon-exchange/walletstore/internal/evm"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/internal/storage"
	"github.com/klingon-exchange/walletstore/internal/thirdparty"
	"github.com/klingon-exchange/walletstore/internal/tron"
)

// Options configures a Store.
type Options struct {
	Query query.Options
	// ThirdPartyURL enables the batched balance API for ThirdPartyChains.
	ThirdPartyURL    string
	ThirdPartyChains []string
}

// Store is the process-wide query store.
type Store struct {
	shared *query.SharedContext
	chains *chain.Store

	cosmos   *cosmos.Store
	evm      *evm.Store
	bitcoin  *bitcoin.Store
	tron     *tron.Store
	balances *balance.Queries
	erc20    *currency.ERC20Registrar

	byChain *query.Map[string, *Chain]
}

// New wires every protocol store. Balance registries are consulted with
// the third-party API first, then per protocol. Currency registrars are
// added to chains.
func New(shared *query.SharedContext, chains *chain.Store, kv storage.KVStore, opts Options) *Store {
	s := &Store{
		shared:  shared,
		chains:  chains,
		cosmos:  cosmos.NewStore(shared, chains, opts.Query),
		evm:     evm.NewStore(shared, chains, opts.Query),
		bitcoin: bitcoin.NewStore(shared, chains, opts.Query),
		tron:    tron.NewStore(shared, chains, opts.Query),
	}

	var registries []balance.Registry
	if opts.ThirdPartyURL != "" && len(opts.ThirdPartyChains) > 0 {
		registries = append(registries, thirdparty.NewBalanceRegistry(shared, opts.ThirdPartyURL, opts.ThirdPartyChains, opts.Query))
	}
	registries = append(registries,
		cosmos.NewNativeBalanceRegistry(s.cosmos),
		cosmos.NewCW20BalanceRegistry(s.cosmos),
		evm.NewNativeBalanceRegistry(s.evm),
		evm.NewERC20BalanceRegistry(s.evm),
		bitcoin.NewBalanceRegistry(s.bitcoin),
		tron.NewBalanceRegistry(s.tron),
	)
	s.balances = balance.NewQueries(chains, registries...)

	s.erc20 = currency.NewERC20Registrar(s.evm, chains, kv)
	chains.AddRegistrar(s.erc20.Resolve)
	chains.AddRegistrar(currency.NewCW20Registrar(s.cosmos, chains).Resolve)
	chains.AddRegistrar(currency.NewIBCRegistrar(s.cosmos, chains).Resolve)

	s.byChain = query.NewMap(func(chainID string) *Chain {
		info, _ := chains.Get(chainID)
		return &Chain{info: info, store: s}
	})
	return s
}

// Shared returns the query context.
func (s *Store) Shared() *query.SharedContext { return s.shared }

// Chains returns the chain store.
func (s *Store) Chains() *chain.Store { return s.chains }

// Balances returns the balance dispatcher.
func (s *Store) Balances() *balance.Queries { return s.balances }

// Get returns the memoized per-chain view.
func (s *Store) Get(chainID string) (*Chain, error) {
	info, err := s.chains.Get(chainID)
	if err != nil {
		return nil, err
	}
	return s.byChain.Get(info.ChainID), nil
}

// Chain exposes the query sets that apply to one chain.
type Chain struct {
	info  *chain.ChainInfo
	store *Store
}

// Info returns the chain description.
func (c *Chain) Info() *chain.ChainInfo { return c.info }

// Cosmos returns the Cosmos REST queries when the chain has them.
func (c *Chain) Cosmos() (*cosmos.Queries, bool) {
	q, err := c.store.cosmos.Get(c.info.ChainID)
	return q, err == nil
}

// EVM returns the JSON-RPC queries when the chain is EVM-capable.
func (c *Chain) EVM() (*evm.Queries, bool) {
	q, err := c.store.evm.Get(c.info.ChainID)
	return q, err == nil
}

// Bitcoin returns the UTXO queries of bip122 chains.
func (c *Chain) Bitcoin() (*bitcoin.Queries, bool) {
	q, err := c.store.bitcoin.Get(c.info.ChainID)
	return q, err == nil
}

// Tron returns the account queries of tron chains.
func (c *Chain) Tron() (*tron.Queries, bool) {
	q, err := c.store.tron.Get(c.info.ChainID)
	return q, err == nil
}

// Balances returns the balance set of address.
func (c *Chain) Balances(address string) *balance.Set {
	return c.store.balances.For(c.info.ChainID, address)
}
