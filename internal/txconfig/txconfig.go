// Package txconfig validates an in-progress transaction draft. A draft is
// five configs (amount, gas, fee, memo, recipient) whose UI properties are
// recomputed whenever an input or an upstream balance changes.
//
// The amount and fee configs reference each other. They are built in the
// order amount, gas, fee and the fee config is then injected into the
// amount config exactly once; re-wiring is unsupported.
package txconfig

import (
	"errors"
	"sync"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/reactive"
)

// Status is the validation state of one config.
type Status int

const (
	StatusUninitialized Status = iota
	StatusValid
	StatusInvalid
	StatusLoading
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusLoading:
		return "loading"
	default:
		return "uninitialized"
	}
}

// UIProperties is what a form renders for one field. A config with only a
// Warning is still submittable.
type UIProperties struct {
	Error   error `json:"-"`
	Warning error `json:"-"`
	Loading bool  `json:"loading"`
}

// Status derives the validation state.
func (p UIProperties) Status() Status {
	switch {
	case p.Error != nil:
		return StatusInvalid
	case p.Loading:
		return StatusLoading
	default:
		return StatusValid
	}
}

// Config is one validated field of a draft.
type Config interface {
	UIProperties() UIProperties
	Subscribe(fn func()) func()
}

// Balances resolves the balance impl of a denom for the sending address.
// *balance.Set satisfies it.
type Balances interface {
	Impl(denom string) balance.Impl
}

// base carries the reactive plumbing shared by every config.
type base struct {
	inputs reactive.Subject
	props  *reactive.Computed[UIProperties]

	mu      sync.Mutex
	touched bool
	watched map[balance.Impl]bool
}

func (b *base) touch() {
	b.mu.Lock()
	b.touched = true
	b.mu.Unlock()
	b.inputs.Notify()
}

// UIProperties returns the current validation result.
func (b *base) UIProperties() UIProperties {
	return b.props.Get()
}

// Status is StatusUninitialized until the first input is set.
func (b *base) Status() Status {
	b.mu.Lock()
	touched := b.touched
	b.mu.Unlock()
	if !touched {
		return StatusUninitialized
	}
	return b.UIProperties().Status()
}

// Subscribe fires when the UI properties become stale.
func (b *base) Subscribe(fn func()) func() {
	return b.props.Subscribe(fn)
}

// watch makes the given computed values depend on impl.
func (b *base) watch(impl balance.Impl, deps ...interface{ DependOn(reactive.Source) }) {
	if impl == nil {
		return
	}
	b.mu.Lock()
	if b.watched == nil {
		b.watched = make(map[balance.Impl]bool)
	}
	seen := b.watched[impl]
	b.watched[impl] = true
	b.mu.Unlock()
	if seen {
		return
	}
	for _, d := range deps {
		d.DependOn(impl)
	}
}

func lookupBalance(balances Balances, denom string) balance.Balance {
	if balances == nil {
		return balance.Balance{}
	}
	impl := balances.Impl(denom)
	if impl == nil {
		return balance.Balance{}
	}
	return impl.Balance()
}

// CheckTxConfigs returns the first validation error among cfgs, or
// ErrLoading when none failed but one is still loading.
func CheckTxConfigs(cfgs ...Config) error {
	loading := false
	for _, cfg := range cfgs {
		if cfg == nil {
			continue
		}
		p := cfg.UIProperties()
		if p.Error != nil {
			return p.Error
		}
		if p.Loading {
			loading = true
		}
	}
	if loading {
		return ErrLoading
	}
	return nil
}

// IsValidationError reports whether err is one of the typed field errors,
// as opposed to ErrLoading or a configuration failure.
func IsValidationError(err error) bool {
	if err == nil || errors.Is(err, ErrLoading) {
		return false
	}
	switch err.(type) {
	case EmptyAddressError, *InvalidBech32Error, *InvalidHexError, *InvalidAddressError,
		*ENSNotSupportedError, EmptyAmountError, *InvalidNumberAmountError, ZeroAmountError,
		NegativeAmountError, *InsufficientAmountError, *NotLoadedFeeError, *InsufficientFeeError,
		*InvalidGasError, *MemoTooLongError:
		return true
	}
	return false
}
