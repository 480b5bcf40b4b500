package account

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/walletstore/internal/bitcoin"
	"github.com/klingon-exchange/walletstore/internal/notify"
	"github.com/klingon-exchange/walletstore/internal/tron"
)

// BitcoinAccount reads UTXOs and broadcasts raw transactions.
type BitcoinAccount struct {
	base    *Base
	queries *bitcoin.Queries
}

// UTXOs returns a fresh snapshot of the account's unspent outputs.
func (b *BitcoinAccount) UTXOs(ctx context.Context) (bitcoin.UTXOs, error) {
	addr := b.base.Bech32Address()
	if addr == "" {
		return nil, ErrNotLoaded
	}
	q := b.queries.UTXOs(addr)
	if err := q.Fetch(ctx); err != nil {
		return nil, err
	}
	resp := q.Response()
	if resp == nil {
		return nil, fmt.Errorf("utxos of %s unavailable", addr)
	}
	return resp.Data, nil
}

// Fees returns the recommended fee rates.
func (b *BitcoinAccount) Fees(ctx context.Context) (bitcoin.FeeEstimates, error) {
	resp, err := b.queries.Fees().WaitResponse(ctx)
	if err != nil {
		return bitcoin.FeeEstimates{}, err
	}
	if resp == nil {
		return bitcoin.FeeEstimates{}, fmt.Errorf("fee estimates unavailable")
	}
	return resp.Data, nil
}

// Broadcast submits a signed transaction in hex.
func (b *BitcoinAccount) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	txid, err := b.queries.Broadcast(ctx, rawTxHex)
	if err != nil {
		b.base.notify(notify.LevelError, "Transaction failed", err.Error())
		return "", err
	}
	b.base.notify(notify.LevelInfo, "Transaction sent", txid)
	return txid, nil
}

// TronAccount reads the Tron account.
type TronAccount struct {
	base    *Base
	queries *tron.Queries
}

// Account fetches the account state. Unfunded accounts are empty.
func (t *TronAccount) Account(ctx context.Context) (tron.Account, error) {
	addr := t.base.Bech32Address()
	if addr == "" {
		return tron.Account{}, ErrNotLoaded
	}
	q := t.queries.Account(addr)
	if err := q.Fetch(ctx); err != nil {
		return tron.Account{}, err
	}
	resp := q.Response()
	if resp == nil {
		return tron.Account{}, fmt.Errorf("tron account %s unavailable", addr)
	}
	return resp.Data, nil
}
