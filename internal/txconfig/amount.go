package txconfig

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/reactive"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// AmountConfig holds the amount to send and its currency.
type AmountConfig struct {
	base

	chains   chain.Getter
	chainID  string
	balances Balances

	denom    string
	amount   string
	fraction float64
	fee      *FeeConfig

	value *reactive.Computed[*big.Int]
}

// NewAmountConfig creates an AmountConfig sending the chain's native
// currency until SetCurrency is called.
func NewAmountConfig(chains chain.Getter, chainID string, balances Balances) *AmountConfig {
	c := &AmountConfig{chains: chains, chainID: chainID, balances: balances}
	c.value = reactive.NewComputed(c.computeAmount, &c.inputs)
	c.props = reactive.NewComputed(c.compute, &c.inputs, c.value)
	c.watchCurrency()
	return c
}

// SetFeeConfig injects the fee config. It may be called once.
func (c *AmountConfig) SetFeeConfig(fee *FeeConfig) error {
	c.mu.Lock()
	if c.fee != nil {
		c.mu.Unlock()
		return ErrAlreadyWired
	}
	c.fee = fee
	c.mu.Unlock()
	c.value.DependOn(fee.value)
	return nil
}

// SetCurrency selects the currency by minimal denom.
func (c *AmountConfig) SetCurrency(denom string) {
	c.mu.Lock()
	c.denom = denom
	c.mu.Unlock()
	c.watchCurrency()
	c.touch()
}

// SetAmount sets a display amount and leaves fraction mode.
func (c *AmountConfig) SetAmount(amount string) {
	c.mu.Lock()
	c.amount, c.fraction = strings.TrimSpace(amount), 0
	c.mu.Unlock()
	c.touch()
}

// SetFraction sends a fraction of the maximum; 1 sends everything that is
// left after the fee.
func (c *AmountConfig) SetFraction(fraction float64) {
	c.mu.Lock()
	c.fraction = fraction
	c.mu.Unlock()
	c.touch()
}

// Fraction returns the fraction, zero when an explicit amount is used.
func (c *AmountConfig) Fraction() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fraction
}

// Currency returns the selected currency. The second result is false when
// no metadata is known for it.
func (c *AmountConfig) Currency() (chain.Currency, bool) {
	c.mu.Lock()
	denom := c.denom
	c.mu.Unlock()
	if denom == "" {
		info, err := c.chains.Get(c.chainID)
		if err != nil {
			return chain.Currency{}, false
		}
		cur, err := info.NativeCurrency()
		if err != nil {
			return chain.Currency{}, false
		}
		return cur, true
	}
	if cur, _ := c.chains.FindCurrency(c.chainID, denom); cur != nil {
		return *cur, true
	}
	return chain.Currency{CoinDenom: denom, CoinMinimalDenom: denom}, false
}

// Amount returns the amount in minimal units. Unparsable input is zero.
func (c *AmountConfig) Amount() *big.Int {
	return new(big.Int).Set(c.value.Get())
}

// MaxAmount is the spendable balance, less the estimated fee when the fee
// is paid in the same currency.
func (c *AmountConfig) MaxAmount() *big.Int {
	cur, _ := c.Currency()
	bal := lookupBalance(c.balances, cur.CoinMinimalDenom)
	max := new(big.Int)
	if bal.Amount != nil {
		max.Set(bal.Amount)
	}

	c.mu.Lock()
	fee := c.fee
	c.mu.Unlock()
	if fee != nil {
		if amount, feeCur := fee.Fee(); amount != nil && feeCur.CoinMinimalDenom == cur.CoinMinimalDenom {
			max.Sub(max, amount)
		}
	}
	if max.Sign() < 0 {
		max.SetInt64(0)
	}
	return max
}

func (c *AmountConfig) watchCurrency() {
	if c.balances == nil {
		return
	}
	cur, _ := c.Currency()
	c.watch(c.balances.Impl(cur.CoinMinimalDenom), c.value, c.props)
}

func (c *AmountConfig) computeAmount() *big.Int {
	c.mu.Lock()
	amount, fraction := c.amount, c.fraction
	c.mu.Unlock()

	if fraction > 0 {
		max := c.MaxAmount()
		return decimal.NewFromBigInt(max, 0).Mul(decimal.NewFromFloat(fraction)).Floor().BigInt()
	}
	cur, _ := c.Currency()
	v, err := helpers.ParseAmount(amount, cur.CoinDecimals)
	if err != nil {
		return new(big.Int)
	}
	return v
}

func (c *AmountConfig) compute() UIProperties {
	c.mu.Lock()
	amount, fraction := c.amount, c.fraction
	c.mu.Unlock()

	cur, known := c.Currency()
	var warning error
	if !known {
		warning = &UnknownCurrencyWarning{Denom: cur.CoinMinimalDenom}
	}
	bal := lookupBalance(c.balances, cur.CoinMinimalDenom)

	if fraction <= 0 {
		if amount == "" {
			return UIProperties{Error: EmptyAmountError{}, Warning: warning}
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return UIProperties{Error: &InvalidNumberAmountError{Input: amount}, Warning: warning}
		}
		if d.IsNegative() {
			return UIProperties{Error: NegativeAmountError{}, Warning: warning}
		}
		if c.value.Get().Sign() == 0 {
			return UIProperties{Error: ZeroAmountError{}, Warning: warning}
		}
	}
	if !bal.Ready {
		return UIProperties{Loading: true, Warning: warning}
	}

	value := c.value.Get()
	if value.Sign() == 0 {
		return UIProperties{Error: ZeroAmountError{}, Warning: warning}
	}
	if value.Cmp(bal.Amount) > 0 {
		return UIProperties{
			Error: &InsufficientAmountError{
				Need: helpers.FormatAmount(value, cur.CoinDecimals) + " " + cur.CoinDenom,
				Have: bal.String(),
			},
			Warning: warning,
		}
	}
	return UIProperties{Warning: warning}
}
