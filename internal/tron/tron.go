// Package tron provides TronGrid account queries and the TRX balance
// registry.
package tron

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
)

// AddressVersion is the leading byte of every mainnet Tron address.
const AddressVersion = 0x41

var (
	ErrInvalidAddress = errors.New("invalid tron address")
	ErrNotTron        = errors.New("not a tron chain")
)

// ValidateAddress checks a base58check "T..." address.
func ValidateAddress(addr string) error {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if version != AddressVersion || len(payload) != 20 {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	return nil
}

// AddressFromHash encodes a 20-byte account hash as a Tron address.
func AddressFromHash(hash []byte) string {
	return base58.CheckEncode(hash, AddressVersion)
}

// Account is the part of /wallet/getaccount the wallet reads. Unfunded
// accounts answer {} which decodes to a zero balance.
type Account struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// Queries holds the account queries of one Tron network.
type Queries struct {
	info     *chain.ChainInfo
	accounts *query.Map[string, *query.ObservableQuery[Account]]
}

// NewQueries builds the query set of info.
func NewQueries(shared *query.SharedContext, info *chain.ChainInfo, opts query.Options) *Queries {
	q := &Queries{info: info}
	q.accounts = query.NewMap(func(addr string) *query.ObservableQuery[Account] {
		o := opts
		o.CanFetch = func() bool { return addr != "" }
		body := map[string]interface{}{"address": addr, "visible": true}
		aq, err := query.NewJSONPost[Account](shared, info.Rest, "/wallet/getaccount", body, o)
		if err != nil {
			panic(err)
		}
		return aq
	})
	return q
}

// Account returns the account query of addr.
func (q *Queries) Account(addr string) *query.ObservableQuery[Account] {
	return q.accounts.Get(addr)
}

// Store memoizes Queries per chain.
type Store struct {
	chains  chain.Getter
	byChain *query.Map[string, *Queries]
}

// NewStore creates a Store.
func NewStore(shared *query.SharedContext, chains chain.Getter, opts query.Options) *Store {
	s := &Store{chains: chains}
	s.byChain = query.NewMap(func(chainID string) *Queries {
		info, _ := chains.Get(chainID)
		return NewQueries(shared, info, opts)
	})
	return s
}

// Get returns the queries of chainID.
func (s *Store) Get(chainID string) (*Queries, error) {
	info, err := s.chains.Get(chainID)
	if err != nil {
		return nil, err
	}
	if info.Kind() != chain.KindTron {
		return nil, fmt.Errorf("%w: %s", ErrNotTron, chainID)
	}
	return s.byChain.Get(info.ChainID), nil
}

// BalanceRegistry serves TRX balances.
type BalanceRegistry struct {
	store *Store
}

// NewBalanceRegistry creates the registry.
func NewBalanceRegistry(store *Store) *BalanceRegistry {
	return &BalanceRegistry{store: store}
}

func (r *BalanceRegistry) GetBalanceImpl(chainID string, chains chain.Getter, address, denom string) balance.Impl {
	q, err := r.store.Get(chainID)
	if err != nil {
		return nil
	}
	native, err := q.info.NativeCurrency()
	if err != nil || native.CoinMinimalDenom != denom || ValidateAddress(address) != nil {
		return nil
	}
	return balance.NewQueryImpl(q.Account(address), chains, chainID, denom,
		func(data Account, _ string) *big.Int { return big.NewInt(data.Balance) })
}

var _ balance.Registry = (*BalanceRegistry)(nil)
