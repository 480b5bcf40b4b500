package cosmos

import (
	"math/big"
	"strings"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
)

// CW20Prefix marks a CW20 contract denom: "cw20:<contract>".
const CW20Prefix = "cw20"

// NativeBalanceRegistry serves bank balances of bech32 addresses.
type NativeBalanceRegistry struct {
	store *Store
}

// NewNativeBalanceRegistry creates the registry.
func NewNativeBalanceRegistry(store *Store) *NativeBalanceRegistry {
	return &NativeBalanceRegistry{store: store}
}

func (r *NativeBalanceRegistry) GetBalanceImpl(chainID string, chains chain.Getter, address, denom string) balance.Impl {
	if kind, _ := chain.SplitDenom(denom); kind != "" {
		return nil
	}
	q, ok := r.store.queriesFor(chainID, address)
	if !ok {
		return nil
	}
	return balance.NewQueryImpl(q.Balances(address), chains, chainID, denom,
		func(data BalancesResponse, denom string) *big.Int { return data.AmountOf(denom) })
}

// CW20BalanceRegistry serves "cw20:<contract>" balances on cosmwasm chains.
type CW20BalanceRegistry struct {
	store *Store
}

// NewCW20BalanceRegistry creates the registry.
func NewCW20BalanceRegistry(store *Store) *CW20BalanceRegistry {
	return &CW20BalanceRegistry{store: store}
}

func (r *CW20BalanceRegistry) GetBalanceImpl(chainID string, chains chain.Getter, address, denom string) balance.Impl {
	kind, contract := chain.SplitDenom(denom)
	if kind != CW20Prefix || contract == "" {
		return nil
	}
	q, ok := r.store.queriesFor(chainID, address)
	if !ok || !q.info.HasFeature(chain.FeatureCosmwasm) {
		return nil
	}
	return balance.NewQueryImpl(q.CW20Balance(contract, address), chains, chainID, denom,
		func(data CW20BalanceResponse, _ string) *big.Int {
			n, ok := new(big.Int).SetString(strings.TrimSpace(data.Data.Balance), 10)
			if !ok {
				return nil
			}
			return n
		})
}

// queriesFor returns the chain queries when address is a valid account
// address of chainID.
func (s *Store) queriesFor(chainID, address string) (*Queries, bool) {
	q, err := s.Get(chainID)
	if err != nil {
		return nil, false
	}
	prefix, err := q.info.Bech32Prefix()
	if err != nil {
		return nil, false
	}
	if ValidateAddress(address, prefix) != nil {
		return nil, false
	}
	return q, true
}

var (
	_ balance.Registry = (*NativeBalanceRegistry)(nil)
	_ balance.Registry = (*CW20BalanceRegistry)(nil)
)
