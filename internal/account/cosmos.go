package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
	"github.com/klingon-exchange/walletstore/internal/notify"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// Message kinds reported by IsSendingMsg.
const (
	KindSend            = "send"
	KindExecuteContract = "executeWasm"
	KindEVMSend         = "evmSend"
)

// trackTimeout bounds the background wait for inclusion.
const trackTimeout = 2 * time.Minute

// Msg is an amino JSON message.
type Msg struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// StdFee is the fee of an amino transaction.
type StdFee struct {
	Amount []cosmos.Coin `json:"amount"`
	Gas    string        `json:"gas"`
}

// NewStdFee builds a fee of amount paid in denom for gas.
func NewStdFee(denom string, amount *big.Int, gas uint64) StdFee {
	return StdFee{
		Amount: []cosmos.Coin{{Denom: denom, Amount: amount.String()}},
		Gas:    strconv.FormatUint(gas, 10),
	}
}

// SignDoc is what the signer signs.
type SignDoc struct {
	AccountNumber string `json:"account_number"`
	ChainID       string `json:"chain_id"`
	Fee           StdFee `json:"fee"`
	Memo          string `json:"memo"`
	Msgs          []Msg  `json:"msgs"`
	Sequence      string `json:"sequence"`
}

// StdSignature is one signature of a StdTx.
type StdSignature struct {
	PubKey    PubKey `json:"pub_key"`
	Signature []byte `json:"signature"`
}

// PubKey is an amino public key.
type PubKey struct {
	Type  string `json:"type"`
	Value []byte `json:"value"`
}

// StdTx is a signed amino transaction.
type StdTx struct {
	Msg        []Msg          `json:"msg"`
	Fee        StdFee         `json:"fee"`
	Signatures []StdSignature `json:"signatures"`
	Memo       string         `json:"memo"`
}

// TxEncoder serializes a signed transaction for broadcast.
type TxEncoder func(tx StdTx) ([]byte, error)

// EncodeStdTx encodes tx as amino JSON.
func EncodeStdTx(tx StdTx) ([]byte, error) {
	return json.Marshal(tx)
}

// SortedJSON re-encodes v with object keys sorted, which is the amino sign
// bytes format.
func SortedJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// CosmosAccount signs and broadcasts Cosmos SDK messages.
type CosmosAccount struct {
	base    *Base
	queries *cosmos.Queries
}

// Queries returns the chain's REST queries.
func (c *CosmosAccount) Queries() *cosmos.Queries { return c.queries }

// AccountInfo fetches the sequence and account number. An account the
// chain has never seen has both at zero.
func (c *CosmosAccount) AccountInfo(ctx context.Context) (cosmos.AccountInfo, error) {
	addr := c.base.Bech32Address()
	if addr == "" {
		return cosmos.AccountInfo{}, ErrNotLoaded
	}
	aq := c.queries.Account(addr)
	fetchErr := aq.Query().Fetch(ctx)
	info, ok := aq.Info()
	if !ok {
		if fetchErr == nil {
			fetchErr = errors.New("account query returned no data")
		}
		return cosmos.AccountInfo{}, fmt.Errorf("failed to fetch account: %w", fetchErr)
	}
	return info, nil
}

// MakeSendTokenMsg builds a bank send of a display amount of cur. CW20
// currencies become a contract transfer.
func (c *CosmosAccount) MakeSendTokenMsg(amount string, cur chain.Currency, recipient string) (Msg, error) {
	from := c.base.Bech32Address()
	if from == "" {
		return Msg{}, ErrNotLoaded
	}
	prefix, err := c.base.info.Bech32Prefix()
	if err != nil {
		return Msg{}, err
	}
	if err := cosmos.ValidateAddress(recipient, prefix); err != nil {
		return Msg{}, err
	}
	minimal, err := helpers.ParseAmount(amount, cur.CoinDecimals)
	if err != nil {
		return Msg{}, err
	}
	if minimal.Sign() <= 0 {
		return Msg{}, fmt.Errorf("%w: %s must be positive", helpers.ErrInvalidAmount, amount)
	}

	if kind, contract := chain.SplitDenom(cur.CoinMinimalDenom); kind == "cw20" {
		transfer := map[string]any{
			"transfer": map[string]string{"recipient": recipient, "amount": minimal.String()},
		}
		return makeExecuteContractMsg(from, contract, transfer, nil)
	}

	value, err := json.Marshal(map[string]any{
		"from_address": from,
		"to_address":   recipient,
		"amount":       []cosmos.Coin{{Denom: cur.CoinMinimalDenom, Amount: minimal.String()}},
	})
	if err != nil {
		return Msg{}, err
	}
	return Msg{Type: "cosmos-sdk/MsgSend", Value: value}, nil
}

// SendMsgs signs msgs through the router and broadcasts them. Inclusion is
// tracked in the background and reported through the notifier.
func (c *CosmosAccount) SendMsgs(ctx context.Context, kind string, msgs []Msg, fee StdFee, memo string) (*cosmos.TxResponse, error) {
	if err := c.base.beginSending(kind); err != nil {
		return nil, err
	}
	defer c.base.endSending()

	acc, err := c.AccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	doc := SignDoc{
		AccountNumber: strconv.FormatUint(acc.AccountNumber, 10),
		ChainID:       c.base.info.ChainID,
		Fee:           fee,
		Memo:          memo,
		Msgs:          msgs,
		Sequence:      strconv.FormatUint(acc.Sequence, 10),
	}

	res, err := c.base.router.Send(ctx, &SignAminoMsg{
		ChainID: c.base.info.ChainID,
		Signer:  c.base.Bech32Address(),
		Doc:     doc,
	})
	if err != nil {
		return nil, err
	}
	signed, ok := res.Value.(*SignAminoResult)
	if !ok {
		return nil, fmt.Errorf("unexpected sign result %T", res.Value)
	}

	txBytes, err := c.base.opts.Encoder(StdTx{
		Msg: signed.Signed.Msgs,
		Fee: signed.Signed.Fee,
		Signatures: []StdSignature{{
			PubKey:    PubKey{Type: pubKeyType(c.base.info), Value: signed.PubKey},
			Signature: signed.Signature,
		}},
		Memo: signed.Signed.Memo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tx: %w", err)
	}

	resp, err := c.queries.BroadcastTx(ctx, txBytes, c.base.opts.BroadcastMode)
	if err != nil {
		c.base.notify(notify.LevelError, "Transaction failed", err.Error())
		return resp, err
	}
	c.base.notify(notify.LevelInfo, "Transaction sent", resp.TxHash)

	go c.track(resp.TxHash)
	return resp, nil
}

func (c *CosmosAccount) track(hash string) {
	ctx, cancel := context.WithTimeout(context.Background(), trackTimeout)
	defer cancel()

	resp, err := c.queries.WaitTx(ctx, hash, c.base.opts.Retry)
	if err != nil {
		c.base.log.Warn("transaction not confirmed", "hash", hash, "err", err)
		c.base.notify(notify.LevelError, "Transaction failed", err.Error())
		return
	}
	c.base.notify(notify.LevelSuccess, "Transaction succeeded", fmt.Sprintf("%s included at height %s", resp.TxHash, resp.Height))

	c.base.refreshBalances(ctx)
	if addr := c.base.Bech32Address(); addr != "" {
		_ = c.queries.Account(addr).Query().Fetch(ctx)
	}
}

func pubKeyType(info *chain.ChainInfo) string {
	if info.HasFeature(chain.FeatureEthKeySign) {
		return "ethermint/PubKeyEthSecp256k1"
	}
	return "tendermint/PubKeySecp256k1"
}

// CosmwasmAccount executes contracts on cosmwasm chains.
type CosmwasmAccount struct {
	cosmos *CosmosAccount
}

// MakeExecuteContractMsg builds a MsgExecuteContract.
func (c *CosmwasmAccount) MakeExecuteContractMsg(contract string, msg any, funds []cosmos.Coin) (Msg, error) {
	sender := c.cosmos.base.Bech32Address()
	if sender == "" {
		return Msg{}, ErrNotLoaded
	}
	prefix, err := c.cosmos.base.info.Bech32Prefix()
	if err != nil {
		return Msg{}, err
	}
	if err := cosmos.ValidateAddress(contract, prefix); err != nil {
		return Msg{}, fmt.Errorf("invalid contract address: %w", err)
	}
	return makeExecuteContractMsg(sender, contract, msg, funds)
}

// SendExecuteContract builds and sends one MsgExecuteContract.
func (c *CosmwasmAccount) SendExecuteContract(ctx context.Context, contract string, msg any, funds []cosmos.Coin, fee StdFee, memo string) (*cosmos.TxResponse, error) {
	m, err := c.MakeExecuteContractMsg(contract, msg, funds)
	if err != nil {
		return nil, err
	}
	return c.cosmos.SendMsgs(ctx, KindExecuteContract, []Msg{m}, fee, memo)
}

func makeExecuteContractMsg(sender, contract string, msg any, funds []cosmos.Coin) (Msg, error) {
	if funds == nil {
		funds = []cosmos.Coin{}
	}
	value, err := json.Marshal(map[string]any{
		"sender":   sender,
		"contract": contract,
		"msg":      msg,
		"funds":    funds,
	})
	if err != nil {
		return Msg{}, err
	}
	return Msg{Type: "wasm/MsgExecuteContract", Value: value}, nil
}
