package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/klingon-exchange/walletstore/internal/account"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/txconfig"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// Default gas limits of a plain transfer.
const (
	DefaultCosmosGas = 200000
	DefaultEVMGas    = 21000
	DefaultERC20Gas  = 65000
)

// TxParams describes a transfer draft.
type TxParams struct {
	ChainID   string  `json:"chain_id"`
	Denom     string  `json:"denom,omitempty"`
	Amount    string  `json:"amount,omitempty"`
	Fraction  float64 `json:"fraction,omitempty"`
	Recipient string  `json:"recipient"`
	Memo      string  `json:"memo,omitempty"`
	Gas       uint64  `json:"gas,omitempty"`
	FeeType   string  `json:"fee_type,omitempty"`
	FeeDenom  string  `json:"fee_denom,omitempty"`
	// ManualFee is a fee in minimal units, used with fee_type "manual".
	ManualFee string `json:"manual_fee,omitempty"`
}

// FieldState is the validation state of one draft field.
type FieldState struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// TxValidateResult is the response for tx_validate.
type TxValidateResult struct {
	Valid     bool                  `json:"valid"`
	Error     string                `json:"error,omitempty"`
	Fields    map[string]FieldState `json:"fields"`
	Amount    string                `json:"amount"`
	MaxAmount string                `json:"max_amount"`
	Denom     string                `json:"denom"`
	Fee       string                `json:"fee,omitempty"`
	FeeDenom  string                `json:"fee_denom,omitempty"`
	Gas       uint64                `json:"gas"`
}

// TxSendResult is the response for tx_send.
type TxSendResult struct {
	TxHash string `json:"tx_hash"`
}

func defaultGas(info *chain.ChainInfo, denom string) uint64 {
	if info.Kind() != chain.KindEVM {
		return DefaultCosmosGas
	}
	if kind, _ := chain.SplitDenom(denom); kind == "erc20" {
		return DefaultERC20Gas
	}
	return DefaultEVMGas
}

// buildDraft applies p to a fresh draft and waits for the balances it
// reads. The caller closes the draft.
func (s *Server) buildDraft(ctx context.Context, p *TxParams) (*txconfig.TxConfigs, *account.Account, error) {
	acc, err := s.loadAccount(ctx, p.ChainID)
	if err != nil {
		return nil, nil, err
	}
	set, err := acc.Balances()
	if err != nil {
		return nil, nil, err
	}

	gas := p.Gas
	if gas == 0 {
		gas = defaultGas(acc.ChainInfo(), p.Denom)
	}
	draft, err := txconfig.NewTxConfigs(s.queries.Chains(), acc.ChainID(), set, gas)
	if err != nil {
		return nil, nil, err
	}

	if p.Denom != "" {
		draft.Amount.SetCurrency(p.Denom)
	}
	if p.Fraction > 0 {
		draft.Amount.SetFraction(p.Fraction)
	} else {
		draft.Amount.SetAmount(p.Amount)
	}
	draft.Recipient.SetRecipient(p.Recipient)
	draft.Memo.SetMemo(p.Memo)
	if p.FeeDenom != "" {
		draft.Fee.SetFeeCurrency(p.FeeDenom)
	}
	if p.FeeType != "" {
		draft.Fee.SetFeeType(txconfig.FeeType(p.FeeType))
	}
	if p.ManualFee != "" {
		fee, ok := new(big.Int).SetString(p.ManualFee, 10)
		if !ok || fee.Sign() < 0 {
			draft.Close()
			return nil, nil, invalidParams("manual_fee %q is not a non-negative integer", p.ManualFee)
		}
		draft.Fee.SetFeeType(txconfig.FeeManual)
		draft.Fee.SetManualFee(fee)
	}

	// Failures surface as a loading or not-loaded field state.
	cur, _ := draft.Amount.Currency()
	fc, _ := draft.Fee.FeeCurrency()
	for _, denom := range []string{cur.CoinMinimalDenom, fc.CoinMinimalDenom} {
		if impl := set.Impl(denom); impl != nil {
			impl.Fetch(ctx)
		}
	}
	return draft, acc, nil
}

func fieldState(cfg txconfig.Config) FieldState {
	props := cfg.UIProperties()
	state := FieldState{Status: props.Status().String()}
	if props.Error != nil {
		state.Error = props.Error.Error()
	}
	if props.Warning != nil {
		state.Warning = props.Warning.Error()
	}
	return state
}

func (s *Server) txValidate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TxParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	draft, _, err := s.buildDraft(ctx, &p)
	if err != nil {
		return nil, err
	}
	defer draft.Close()

	cur, _ := draft.Amount.Currency()
	result := &TxValidateResult{
		Fields: map[string]FieldState{
			"recipient": fieldState(draft.Recipient),
			"amount":    fieldState(draft.Amount),
			"memo":      fieldState(draft.Memo),
			"gas":       fieldState(draft.Gas),
			"fee":       fieldState(draft.Fee),
		},
		Amount:    draft.Amount.Amount().String(),
		MaxAmount: draft.Amount.MaxAmount().String(),
		Denom:     cur.CoinMinimalDenom,
		Gas:       draft.Gas.Gas(),
	}
	if fee, feeCur := draft.Fee.Fee(); fee != nil {
		result.Fee = fee.String()
		result.FeeDenom = feeCur.CoinMinimalDenom
	}
	if err := draft.Check(); err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
	}
	return result, nil
}

func (s *Server) txSend(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TxParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	draft, acc, err := s.buildDraft(ctx, &p)
	if err != nil {
		return nil, err
	}
	defer draft.Close()

	if err := draft.Check(); err != nil {
		return nil, err
	}

	cur, _ := draft.Amount.Currency()
	amount := helpers.FormatAmount(draft.Amount.Amount(), cur.CoinDecimals)
	fee, feeCur := draft.Fee.Fee()
	gas := draft.Gas.Gas()
	recipient := strings.TrimSpace(draft.Recipient.Recipient())

	if evmAcc, ok := acc.EVM(); ok {
		tx, err := evmAcc.MakeSendTx(ctx, account.SendParams{
			Currency:  cur,
			Amount:    amount,
			Recipient: recipient,
			Gas:       gas,
			GasPrice:  new(big.Int).Quo(fee, new(big.Int).SetUint64(gas)),
		})
		if err != nil {
			return nil, err
		}
		hash, err := evmAcc.SendTx(ctx, tx)
		if err != nil {
			return nil, err
		}
		return &TxSendResult{TxHash: hash}, nil
	}

	if cosmosAcc, ok := acc.Cosmos(); ok {
		msg, err := cosmosAcc.MakeSendTokenMsg(amount, cur, recipient)
		if err != nil {
			return nil, err
		}
		resp, err := cosmosAcc.SendMsgs(ctx, account.KindSend, []account.Msg{msg},
			account.NewStdFee(feeCur.CoinMinimalDenom, fee, gas), draft.Memo.Memo())
		if err != nil {
			return nil, err
		}
		return &TxSendResult{TxHash: resp.TxHash}, nil
	}

	return nil, fmt.Errorf("sending is not supported on %s chains", acc.ChainInfo().Kind())
}
