package evm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
)

// NativeBalanceRegistry serves eth_getBalance for hex addresses on
// EVM-capable chains.
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
	if ValidateAddress(address) != nil {
		return nil
	}
	q, err := r.store.Get(chainID)
	if err != nil {
		return nil
	}
	native, err := q.info.NativeCurrency()
	if err != nil || native.CoinMinimalDenom != denom {
		return nil
	}
	return balance.NewQueryImpl(q.Balance(address), chains, chainID, denom,
		func(data *hexutil.Big, _ string) *big.Int {
			if data == nil {
				return nil
			}
			return data.ToInt()
		})
}

// ERC20BalanceRegistry serves "erc20:<contract>" balances.
type ERC20BalanceRegistry struct {
	store *Store
}

// NewERC20BalanceRegistry creates the registry.
func NewERC20BalanceRegistry(store *Store) *ERC20BalanceRegistry {
	return &ERC20BalanceRegistry{store: store}
}

func (r *ERC20BalanceRegistry) GetBalanceImpl(chainID string, chains chain.Getter, address, denom string) balance.Impl {
	kind, contract := chain.SplitDenom(denom)
	if kind != ERC20Prefix || ValidateAddress(contract) != nil {
		return nil
	}
	if ValidateAddress(address) != nil {
		return nil
	}
	q, err := r.store.Get(chainID)
	if err != nil {
		return nil
	}
	return balance.NewQueryImpl(q.ERC20Balance(contract, address), chains, chainID, denom,
		func(data *big.Int, _ string) *big.Int { return data })
}

var (
	_ balance.Registry = (*NativeBalanceRegistry)(nil)
	_ balance.Registry = (*ERC20BalanceRegistry)(nil)
)
