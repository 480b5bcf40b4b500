package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/evm"
	"github.com/klingon-exchange/walletstore/internal/notify"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// EVMAccount signs and sends Ethereum transactions.
type EVMAccount struct {
	base    *Base
	queries *evm.Queries
}

// Queries returns the chain's JSON-RPC queries.
func (e *EVMAccount) Queries() *evm.Queries { return e.queries }

// Nonce fetches the pending nonce of the account.
func (e *EVMAccount) Nonce(ctx context.Context) (uint64, error) {
	addr := e.base.HexAddress()
	if addr == "" {
		return 0, ErrNotLoaded
	}
	q := e.queries.Nonce(addr)
	if err := q.Fetch(ctx); err != nil {
		return 0, err
	}
	resp := q.Response()
	if resp == nil {
		return 0, fmt.Errorf("nonce of %s unavailable", addr)
	}
	return uint64(resp.Data), nil
}

// SendParams describes a transfer of a display amount. Zero Gas or nil
// GasPrice are filled from the node.
type SendParams struct {
	Currency  chain.Currency
	Amount    string
	Recipient string
	Gas       uint64
	GasPrice  *big.Int
}

// MakeSendTx builds an unsigned transfer. ERC-20 currencies call the
// token's transfer method.
func (e *EVMAccount) MakeSendTx(ctx context.Context, p SendParams) (*types.Transaction, error) {
	from := e.base.HexAddress()
	if from == "" {
		return nil, ErrNotLoaded
	}
	if err := evm.ValidateAddress(p.Recipient); err != nil {
		return nil, err
	}
	amount, err := helpers.ParseAmount(p.Amount, p.Currency.CoinDecimals)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", helpers.ErrInvalidAmount, p.Amount)
	}

	to := common.HexToAddress(p.Recipient)
	value := amount
	var data []byte
	if kind, contract := chain.SplitDenom(p.Currency.CoinMinimalDenom); kind == evm.ERC20Prefix {
		if data, err = evm.PackTransfer(p.Recipient, amount); err != nil {
			return nil, err
		}
		to = common.HexToAddress(contract)
		value = new(big.Int)
	}

	nonce, err := e.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	gas := p.Gas
	if gas == 0 {
		gas, err = e.queries.EstimateGas(ctx, evm.CallMsg{
			From:  from,
			To:    to.Hex(),
			Value: (*hexutil.Big)(value),
			Data:  data,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}
	gasPrice := p.GasPrice
	if gasPrice == nil {
		if gasPrice, err = e.queries.SuggestGasPrice(ctx); err != nil {
			return nil, err
		}
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	}), nil
}

func (e *EVMAccount) signer() (types.Signer, error) {
	id, err := e.base.info.EVMChainID()
	if err != nil {
		return nil, err
	}
	return types.LatestSignerForChainID(new(big.Int).SetUint64(id)), nil
}

// SignTx signs tx through the router.
func (e *EVMAccount) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer, err := e.signer()
	if err != nil {
		return nil, err
	}
	digest := signer.Hash(tx)
	res, err := e.base.router.Send(ctx, &SignDigestMsg{
		ChainID: e.base.info.ChainID,
		Signer:  e.base.HexAddress(),
		Digest:  digest[:],
	})
	if err != nil {
		return nil, err
	}
	sig, ok := res.Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected sign result %T", res.Value)
	}
	return tx.WithSignature(signer, sig)
}

// SendTx signs and broadcasts tx, then tracks its receipt in the
// background.
func (e *EVMAccount) SendTx(ctx context.Context, tx *types.Transaction) (string, error) {
	if err := e.base.beginSending(KindEVMSend); err != nil {
		return "", err
	}
	defer e.base.endSending()

	signed, err := e.SignTx(ctx, tx)
	if err != nil {
		return "", err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", err
	}
	hash, err := e.SendRawTransaction(ctx, raw)
	if err != nil {
		e.base.notify(notify.LevelError, "Transaction failed", err.Error())
		return "", err
	}
	e.base.notify(notify.LevelInfo, "Transaction sent", hash)

	go e.track(hash)
	return hash, nil
}

// SendRawTransaction broadcasts an already signed transaction.
func (e *EVMAccount) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	return e.queries.SendRawTransaction(ctx, raw)
}

// WaitReceipt polls for the receipt of hash.
func (e *EVMAccount) WaitReceipt(ctx context.Context, hash string) (*evm.Receipt, error) {
	return e.queries.WaitReceipt(ctx, hash, e.base.opts.Retry)
}

func (e *EVMAccount) track(hash string) {
	ctx, cancel := context.WithTimeout(context.Background(), trackTimeout)
	defer cancel()

	receipt, err := e.WaitReceipt(ctx, hash)
	if err != nil {
		e.base.log.Warn("transaction not confirmed", "hash", hash, "err", err)
		e.base.notify(notify.LevelError, "Transaction failed", err.Error())
		return
	}
	e.base.notify(notify.LevelSuccess, "Transaction succeeded",
		fmt.Sprintf("%s included in block %s", receipt.TxHash, receipt.BlockNumber.ToInt()))
	e.base.refreshBalances(ctx)
}
