// Package bitcoin provides mempool.space-style REST queries and the UTXO
// balance registry for bip122 chains.
package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
)

// TestnetID is the CAIP-2 id of bitcoin testnet3.
const TestnetID = chain.BIP122Prefix + "000000000933ea01ad0ee984209779ba"

var (
	ErrUnknownNetwork  = errors.New("unknown bitcoin network")
	ErrInvalidAddress  = errors.New("invalid bitcoin address")
	ErrBroadcastFailed = errors.New("broadcast failed")
)

// Params returns the network parameters of chainID.
func Params(chainID string) (*chaincfg.Params, error) {
	switch chain.Identifier(chainID) {
	case chain.BitcoinMainnetID:
		return &chaincfg.MainNetParams, nil
	case TestnetID:
		return &chaincfg.TestNet3Params, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, chainID)
}

// ValidateAddress checks that addr decodes for chainID's network.
func ValidateAddress(addr, chainID string) error {
	params, err := Params(chainID)
	if err != nil {
		return err
	}
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !decoded.IsForNet(params) {
		return fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, addr, params.Name)
	}
	return nil
}

// UTXO is one unspent output as returned by /address/{addr}/utxo.
type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// UTXOs is the full UTXO set of an address.
type UTXOs []UTXO

// Total sums the values. Unconfirmed outputs are included when
// withUnconfirmed is set.
func (u UTXOs) Total(withUnconfirmed bool) *big.Int {
	total := new(big.Int)
	for _, utxo := range u {
		if !utxo.Status.Confirmed && !withUnconfirmed {
			continue
		}
		total.Add(total, new(big.Int).SetUint64(utxo.Value))
	}
	return total
}

// FeeEstimates is /v1/fees/recommended in sat/vB.
type FeeEstimates struct {
	FastestFee  float64 `json:"fastestFee"`
	HalfHourFee float64 `json:"halfHourFee"`
	HourFee     float64 `json:"hourFee"`
	EconomyFee  float64 `json:"economyFee"`
	MinimumFee  float64 `json:"minimumFee"`
}

// Queries holds the REST queries of one bitcoin network.
type Queries struct {
	info   *chain.ChainInfo
	shared *query.SharedContext
	utxos  *query.Map[string, *query.ObservableQuery[UTXOs]]
	fees   *query.ObservableQuery[FeeEstimates]
}

// NewQueries builds the query set of info.
func NewQueries(shared *query.SharedContext, info *chain.ChainInfo, opts query.Options) *Queries {
	q := &Queries{info: info, shared: shared}
	q.utxos = query.NewMap(func(addr string) *query.ObservableQuery[UTXOs] {
		o := opts
		o.CanFetch = func() bool { return addr != "" }
		o.Persist = true
		return query.NewJSON[UTXOs](shared, query.Get(info.Rest, "/address/"+addr+"/utxo"), o)
	})
	q.fees = query.NewJSON[FeeEstimates](shared, query.Get(info.Rest, "/v1/fees/recommended"), opts)
	return q
}

// UTXOs returns the UTXO query of addr.
func (q *Queries) UTXOs(addr string) *query.ObservableQuery[UTXOs] { return q.utxos.Get(addr) }

// Fees returns the recommended fee rate query.
func (q *Queries) Fees() *query.ObservableQuery[FeeEstimates] { return q.fees }

// Broadcast posts a raw transaction hex and returns the txid.
func (q *Queries) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	raw, err := q.shared.Fetch(ctx, query.Post(q.info.Rest, "/tx", []byte(rawTxHex)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
	return strings.TrimSpace(string(raw.Body)), nil
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
	if info.Kind() != chain.KindBitcoin {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, chainID)
	}
	return s.byChain.Get(info.ChainID), nil
}

// BalanceRegistry serves the confirmed-plus-mempool UTXO balance of
// bitcoin addresses.
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
	if err != nil || native.CoinMinimalDenom != denom {
		return nil
	}
	if ValidateAddress(address, chainID) != nil {
		return nil
	}
	return balance.NewQueryImpl(q.UTXOs(address), chains, chainID, denom,
		func(data UTXOs, _ string) *big.Int { return data.Total(true) })
}

var _ balance.Registry = (*BalanceRegistry)(nil)
