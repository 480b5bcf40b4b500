package txconfig

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/reactive"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// FeeType selects a gas price tier.
type FeeType string

const (
	FeeLow     FeeType = "low"
	FeeAverage FeeType = "average"
	FeeHigh    FeeType = "high"
	FeeManual  FeeType = "manual"
)

// DefaultGasPriceStep applies to fee currencies that declare no steps.
var DefaultGasPriceStep = chain.GasPriceStep{Low: 0.01, Average: 0.025, High: 0.04}

type feeValue struct {
	amount   *big.Int
	currency chain.Currency
}

// FeeConfig computes fee = ceil(gas x gas price) in the fee currency and
// checks that the balance covers it together with the amount.
type FeeConfig struct {
	base

	chains   chain.Getter
	chainID  string
	balances Balances
	amount   *AmountConfig
	gas      *GasConfig

	feeType FeeType
	denom   string
	manual  *big.Int

	value *reactive.Computed[feeValue]
}

// NewFeeConfig creates a FeeConfig on the average tier, paid in the first
// fee currency of the chain.
func NewFeeConfig(chains chain.Getter, chainID string, balances Balances, amount *AmountConfig, gas *GasConfig) *FeeConfig {
	c := &FeeConfig{
		chains:   chains,
		chainID:  chainID,
		balances: balances,
		amount:   amount,
		gas:      gas,
		feeType:  FeeAverage,
	}
	c.value = reactive.NewComputed(c.computeFee, &c.inputs, &gas.inputs)
	c.props = reactive.NewComputed(c.compute, &c.inputs, &gas.inputs, c.value, amount.value, &amount.inputs)
	c.watchCurrency()
	return c
}

// SetFeeType selects a tier.
func (c *FeeConfig) SetFeeType(t FeeType) {
	c.mu.Lock()
	c.feeType = t
	c.mu.Unlock()
	c.touch()
}

// FeeType returns the selected tier.
func (c *FeeConfig) FeeType() FeeType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeType
}

// SetFeeCurrency selects the fee currency by minimal denom.
func (c *FeeConfig) SetFeeCurrency(denom string) {
	c.mu.Lock()
	c.denom = denom
	c.mu.Unlock()
	c.watchCurrency()
	c.touch()
}

// SetManualFee switches to FeeManual with a fixed amount in minimal units.
func (c *FeeConfig) SetManualFee(amount *big.Int) {
	c.mu.Lock()
	c.feeType = FeeManual
	c.manual = new(big.Int).Set(amount)
	c.mu.Unlock()
	c.touch()
}

// FeeCurrency returns the selected fee currency.
func (c *FeeConfig) FeeCurrency() (chain.FeeCurrency, bool) {
	info, err := c.chains.Get(c.chainID)
	if err != nil {
		return chain.FeeCurrency{}, false
	}
	c.mu.Lock()
	denom := c.denom
	c.mu.Unlock()
	if denom == "" {
		if len(info.FeeCurrencies) == 0 {
			return chain.FeeCurrency{}, false
		}
		return info.FeeCurrencies[0], true
	}
	return info.FeeCurrency(denom)
}

// Fee returns the fee in minimal units and its currency. The amount is nil
// when no fee currency is available.
func (c *FeeConfig) Fee() (*big.Int, chain.Currency) {
	v := c.value.Get()
	if v.amount == nil {
		return nil, v.currency
	}
	return new(big.Int).Set(v.amount), v.currency
}

// GasPrice returns the price per gas unit of tier t.
func GasPrice(fc chain.FeeCurrency, t FeeType) float64 {
	step := DefaultGasPriceStep
	if fc.GasPriceStep != nil {
		step = *fc.GasPriceStep
	}
	switch t {
	case FeeLow:
		return step.Low
	case FeeHigh:
		return step.High
	default:
		return step.Average
	}
}

func (c *FeeConfig) watchCurrency() {
	if c.balances == nil {
		return
	}
	fc, ok := c.FeeCurrency()
	if !ok {
		return
	}
	c.watch(c.balances.Impl(fc.CoinMinimalDenom), c.props)
}

func (c *FeeConfig) computeFee() feeValue {
	fc, ok := c.FeeCurrency()
	if !ok {
		c.mu.Lock()
		denom := c.denom
		c.mu.Unlock()
		return feeValue{currency: chain.Currency{CoinDenom: denom, CoinMinimalDenom: denom}}
	}

	c.mu.Lock()
	feeType, manual := c.feeType, c.manual
	c.mu.Unlock()
	if feeType == FeeManual {
		if manual == nil {
			return feeValue{currency: fc.Currency}
		}
		return feeValue{amount: new(big.Int).Set(manual), currency: fc.Currency}
	}

	gas := new(big.Int).SetUint64(c.gas.Gas())
	price := decimal.NewFromFloat(GasPrice(fc, feeType))
	return feeValue{amount: helpers.MulCeil(gas, price), currency: fc.Currency}
}

func (c *FeeConfig) compute() UIProperties {
	fee, cur := c.Fee()
	if fee == nil {
		return UIProperties{Error: &NotLoadedFeeError{Denom: cur.CoinMinimalDenom}}
	}

	bal := lookupBalance(c.balances, cur.CoinMinimalDenom)
	if !bal.Ready {
		return UIProperties{Loading: true}
	}

	need := new(big.Int).Set(fee)
	if amountCur, _ := c.amount.Currency(); amountCur.CoinMinimalDenom == cur.CoinMinimalDenom {
		need.Add(need, c.amount.Amount())
	}
	if need.Cmp(bal.Amount) > 0 {
		return UIProperties{Error: &InsufficientFeeError{
			Need: helpers.FormatAmount(need, cur.CoinDecimals) + " " + cur.CoinDenom,
			Have: bal.String(),
		}}
	}
	return UIProperties{}
}
