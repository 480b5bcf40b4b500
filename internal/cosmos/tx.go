package cosmos

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// ErrTxFailed is returned when a transaction was included with a non-zero
// code or rejected by CheckTx.
var ErrTxFailed = errors.New("transaction failed")

// Broadcast modes.
const (
	BroadcastSync  = "BROADCAST_MODE_SYNC"
	BroadcastAsync = "BROADCAST_MODE_ASYNC"
)

// BroadcastTx submits signed tx bytes.
func (q *Queries) BroadcastTx(ctx context.Context, txBytes []byte, mode string) (*TxResponse, error) {
	if mode == "" {
		mode = BroadcastSync
	}
	body, err := json.Marshal(map[string]string{
		"tx_bytes": base64.StdEncoding.EncodeToString(txBytes),
		"mode":     mode,
	})
	if err != nil {
		return nil, err
	}
	raw, err := q.shared.Fetch(ctx, query.Post(q.info.Rest, "/cosmos/tx/v1beta1/txs", body))
	if err != nil {
		return nil, fmt.Errorf("broadcast failed: %w", err)
	}
	var env txEnvelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode broadcast response: %w", err)
	}
	if env.TxResponse.Code != 0 {
		return &env.TxResponse, fmt.Errorf("%w: code %d: %s", ErrTxFailed, env.TxResponse.Code, env.TxResponse.RawLog)
	}
	return &env.TxResponse, nil
}

// WaitTx polls for the inclusion of hash with bounded backoff.
func (q *Queries) WaitTx(ctx context.Context, hash string, opts helpers.RetryOptions) (*TxResponse, error) {
	return helpers.Retry(ctx, opts, func(ctx context.Context) (*TxResponse, error) {
		raw, err := q.shared.Fetch(ctx, query.Get(q.info.Rest, "/cosmos/tx/v1beta1/txs/"+hash))
		if err != nil {
			return nil, err
		}
		var env txEnvelope
		if err := json.Unmarshal(raw.Body, &env); err != nil {
			return nil, helpers.Permanent(fmt.Errorf("failed to decode tx: %w", err))
		}
		if env.TxResponse.Code != 0 {
			return &env.TxResponse, helpers.Permanent(fmt.Errorf("%w: code %d: %s", ErrTxFailed, env.TxResponse.Code, env.TxResponse.RawLog))
		}
		return &env.TxResponse, nil
	})
}
