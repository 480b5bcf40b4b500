package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// Transaction errors.
var (
	ErrBroadcastFailed = errors.New("broadcast failed")
	ErrReceiptPending  = errors.New("receipt not available yet")
	ErrReverted        = errors.New("transaction reverted")
)

// rpc issues a one-off JSON-RPC call through the shared context. These
// calls are not cached.
func rpc[T any](ctx context.Context, q *Queries, method string, params ...interface{}) (T, error) {
	var zero T
	body, err := query.EncodeRPC(method, params...)
	if err != nil {
		return zero, err
	}
	raw, err := q.shared.Fetch(ctx, query.Post(q.rpcURL, "", body))
	if err != nil {
		return zero, err
	}
	return query.RPCParser[T]()(raw)
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
// The hash is computed locally and checked against the node's answer.
func (q *Queries) SendRawTransaction(ctx context.Context, rawTx []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return "", fmt.Errorf("%w: invalid transaction: %v", ErrBroadcastFailed, err)
	}
	hash, err := rpc[string](ctx, q, "eth_sendRawTransaction", hexutil.Encode(rawTx))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
	if want := tx.Hash().Hex(); hash != "" && hash != want {
		return "", fmt.Errorf("%w: node returned hash %s, want %s", ErrBroadcastFailed, hash, want)
	}
	return tx.Hash().Hex(), nil
}

// TransactionReceipt returns the receipt of hash, or ErrReceiptPending.
func (q *Queries) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	receipt, err := rpc[*Receipt](ctx, q, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, ErrReceiptPending
	}
	return receipt, nil
}

// WaitReceipt polls for the receipt of hash with bounded backoff. A
// reverted transaction stops polling immediately.
func (q *Queries) WaitReceipt(ctx context.Context, hash string, opts helpers.RetryOptions) (*Receipt, error) {
	return helpers.Retry(ctx, opts, func(ctx context.Context) (*Receipt, error) {
		receipt, err := q.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if !receipt.Succeeded() {
			return receipt, helpers.Permanent(fmt.Errorf("%w: %s", ErrReverted, hash))
		}
		return receipt, nil
	})
}

// EstimateGas runs eth_estimateGas for msg.
func (q *Queries) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	gas, err := rpc[hexutil.Uint64](ctx, q, "eth_estimateGas", msg)
	if err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// SuggestGasPrice reads the cached gas price query, fetching when empty.
func (q *Queries) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	resp, err := q.gasPrice.WaitResponse(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("gas price unavailable")
	}
	return resp.Data.ToInt(), nil
}
