// Package evm provides Ethereum JSON-RPC queries, a transaction client and
// the native and ERC-20 balance registries.
package evm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
)

// ERC20Prefix marks an ERC-20 contract denom: "erc20:<contract>".
const ERC20Prefix = "erc20"

// ErrInvalidAddress is returned for strings that are not 20-byte hex
// addresses.
var ErrInvalidAddress = errors.New("invalid hex address")

// ValidateAddress checks a 0x-prefixed hex address.
func ValidateAddress(addr string) error {
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}

// Queries holds the memoized JSON-RPC queries of one EVM-capable chain.
type Queries struct {
	info   *chain.ChainInfo
	rpcURL string
	shared *query.SharedContext
	opts   query.Options

	balances      *query.Map[string, *query.ObservableQuery[*hexutil.Big]]
	nonces        *query.Map[string, *query.ObservableQuery[hexutil.Uint64]]
	erc20Balances *query.Map[erc20Key, *query.ObservableQuery[*big.Int]]
	tokenInfos    *query.Map[string, *query.ObservableQuery[TokenInfo]]
	gasPrice      *query.ObservableQuery[*hexutil.Big]
	feeHistory    *query.ObservableQuery[FeeHistory]
}

type erc20Key struct {
	contract string
	owner    string
}

// NewQueries builds the query set of info. It fails when the chain has no
// EVM endpoint.
func NewQueries(shared *query.SharedContext, info *chain.ChainInfo, opts query.Options) (*Queries, error) {
	rpcURL, err := info.EVMRPC()
	if err != nil {
		return nil, err
	}
	q := &Queries{info: info, rpcURL: rpcURL, shared: shared, opts: opts}

	q.balances = query.NewMap(func(addr string) *query.ObservableQuery[*hexutil.Big] {
		return q.call(addr, "eth_getBalance", addr, "latest")
	})
	q.nonces = query.NewMap(func(addr string) *query.ObservableQuery[hexutil.Uint64] {
		body, _ := query.EncodeRPC("eth_getTransactionCount", addr, "pending")
		return query.New(shared, query.Post(rpcURL, "", body), query.RPCParser[hexutil.Uint64](), q.addressOptions(addr))
	})
	q.erc20Balances = query.NewMap(func(k erc20Key) *query.ObservableQuery[*big.Int] {
		data, _ := PackBalanceOf(k.owner)
		body, _ := query.EncodeRPC("eth_call", CallMsg{To: k.contract, Data: data}, "latest")
		return query.New(shared, query.Post(rpcURL, "", body), parseUint256, q.addressOptions(k.owner))
	})
	q.tokenInfos = query.NewMap(func(contract string) *query.ObservableQuery[TokenInfo] {
		return newTokenInfoQuery(shared, rpcURL, contract, opts)
	})
	q.gasPrice = q.call("", "eth_gasPrice")
	q.feeHistory = func() *query.ObservableQuery[FeeHistory] {
		body, _ := query.EncodeRPC("eth_feeHistory", "0x5", "latest", []float64{25, 50, 75})
		return query.New(shared, query.Post(rpcURL, "", body), query.RPCParser[FeeHistory](), opts)
	}()
	return q, nil
}

func (q *Queries) call(addr, method string, params ...interface{}) *query.ObservableQuery[*hexutil.Big] {
	body, _ := query.EncodeRPC(method, params...)
	opts := q.opts
	if addr != "" {
		opts = q.addressOptions(addr)
	}
	return query.New(q.shared, query.Post(q.rpcURL, "", body), query.RPCParser[*hexutil.Big](), opts)
}

func (q *Queries) addressOptions(addr string) query.Options {
	opts := q.opts
	opts.CanFetch = func() bool { return addr != "" }
	return opts
}

// parseUint256 decodes an eth_call returning a single uint256. The result
// is zero padded so hexutil.DecodeBig cannot be used.
func parseUint256(raw *query.RawResponse) (*big.Int, error) {
	out, err := query.RPCParser[hexutil.Bytes]()(raw)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

// ChainInfo returns the chain the queries belong to.
func (q *Queries) ChainInfo() *chain.ChainInfo { return q.info }

// RPCURL returns the JSON-RPC endpoint.
func (q *Queries) RPCURL() string { return q.rpcURL }

// Balance returns the eth_getBalance query of addr.
func (q *Queries) Balance(addr string) *query.ObservableQuery[*hexutil.Big] {
	return q.balances.Get(strings.ToLower(addr))
}

// Nonce returns the pending transaction count query of addr.
func (q *Queries) Nonce(addr string) *query.ObservableQuery[hexutil.Uint64] {
	return q.nonces.Get(strings.ToLower(addr))
}

// ERC20Balance returns the balanceOf query of owner in contract.
func (q *Queries) ERC20Balance(contract, owner string) *query.ObservableQuery[*big.Int] {
	return q.erc20Balances.Get(erc20Key{contract: strings.ToLower(contract), owner: strings.ToLower(owner)})
}

// TokenInfo returns the symbol and decimals query of contract.
func (q *Queries) TokenInfo(contract string) *query.ObservableQuery[TokenInfo] {
	return q.tokenInfos.Get(strings.ToLower(contract))
}

// GasPrice returns the eth_gasPrice query.
func (q *Queries) GasPrice() *query.ObservableQuery[*hexutil.Big] { return q.gasPrice }

// FeeHistory returns the eth_feeHistory query over the last five blocks.
func (q *Queries) FeeHistory() *query.ObservableQuery[FeeHistory] { return q.feeHistory }

// newTokenInfoQuery sends symbol() and decimals() as one JSON-RPC batch.
func newTokenInfoQuery(shared *query.SharedContext, rpcURL, contract string, opts query.Options) *query.ObservableQuery[TokenInfo] {
	calls := []map[string]interface{}{
		{"jsonrpc": "2.0", "id": 1, "method": "eth_call", "params": []interface{}{CallMsg{To: contract, Data: packNoArgs("symbol")}, "latest"}},
		{"jsonrpc": "2.0", "id": 2, "method": "eth_call", "params": []interface{}{CallMsg{To: contract, Data: packNoArgs("decimals")}, "latest"}},
	}
	body, _ := json.Marshal(calls)
	return query.New(shared, query.Post(rpcURL, "", body), func(raw *query.RawResponse) (TokenInfo, error) {
		var items []batchItem
		if err := json.Unmarshal(raw.Body, &items); err != nil {
			return TokenInfo{}, err
		}
		info := TokenInfo{Contract: contract}
		var gotSymbol, gotDecimals bool
		for _, item := range items {
			data, err := item.bytes()
			if err != nil {
				return TokenInfo{}, &query.Error{Kind: query.KindRPC, Message: err.Error(), Timestamp: raw.Timestamp, Err: err}
			}
			switch item.ID {
			case 1:
				if info.Symbol, err = UnpackSymbol(data); err != nil {
					return TokenInfo{}, fmt.Errorf("symbol: %w", err)
				}
				gotSymbol = true
			case 2:
				if info.Decimals, err = UnpackDecimals(data); err != nil {
					return TokenInfo{}, fmt.Errorf("decimals: %w", err)
				}
				gotDecimals = true
			}
		}
		if !gotSymbol || !gotDecimals {
			return TokenInfo{}, fmt.Errorf("incomplete token info for %s", contract)
		}
		return info, nil
	}, opts)
}

// Store memoizes Queries per chain.
type Store struct {
	shared  *query.SharedContext
	chains  chain.Getter
	opts    query.Options
	byChain *query.Map[string, *Queries]
}

// NewStore creates a Store.
func NewStore(shared *query.SharedContext, chains chain.Getter, opts query.Options) *Store {
	s := &Store{shared: shared, chains: chains, opts: opts}
	s.byChain = query.NewMap(func(chainID string) *Queries {
		info, err := chains.Get(chainID)
		if err != nil {
			return nil
		}
		q, err := NewQueries(shared, info, opts)
		if err != nil {
			return nil
		}
		return q
	})
	return s
}

// Get returns the queries of chainID, or chain.ErrEVMInfoMissing when the
// chain has no EVM endpoint.
func (s *Store) Get(chainID string) (*Queries, error) {
	info, err := s.chains.Get(chainID)
	if err != nil {
		return nil, err
	}
	if !info.IsEVMCapable() {
		return nil, fmt.Errorf("%w: %s", chain.ErrEVMInfoMissing, chainID)
	}
	return s.byChain.Get(info.ChainID), nil
}

// Shared returns the query context used for transaction calls.
func (s *Store) Shared() *query.SharedContext { return s.shared }
