package txconfig

import "github.com/klingon-exchange/walletstore/internal/chain"

// TxConfigs is one transaction draft.
type TxConfigs struct {
	Amount    *AmountConfig
	Gas       *GasConfig
	Fee       *FeeConfig
	Memo      *MemoConfig
	Recipient *RecipientConfig
}

// NewTxConfigs builds amount, gas and fee in that order and then injects
// the fee config into the amount config.
func NewTxConfigs(chains chain.Getter, chainID string, balances Balances, gas uint64) (*TxConfigs, error) {
	amount := NewAmountConfig(chains, chainID, balances)
	gasCfg := NewGasConfig(gas)
	fee := NewFeeConfig(chains, chainID, balances, amount, gasCfg)
	if err := amount.SetFeeConfig(fee); err != nil {
		return nil, err
	}
	return &TxConfigs{
		Amount:    amount,
		Gas:       gasCfg,
		Fee:       fee,
		Memo:      NewMemoConfig(DefaultMemoLength),
		Recipient: NewRecipientConfig(chains, chainID),
	}, nil
}

// Check runs CheckTxConfigs over every config of the draft.
func (t *TxConfigs) Check() error {
	return CheckTxConfigs(t.Recipient, t.Amount, t.Memo, t.Gas, t.Fee)
}

// Close detaches every computed value from its sources.
func (t *TxConfigs) Close() {
	t.Fee.value.Close()
	t.Fee.props.Close()
	t.Amount.value.Close()
	t.Amount.props.Close()
	t.Gas.props.Close()
	t.Memo.props.Close()
	t.Recipient.props.Close()
}
