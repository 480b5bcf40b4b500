package txconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyWired is returned when a fee config is injected twice.
	ErrAlreadyWired = errors.New("amount config already wired to a fee config")
	// ErrLoading is returned by CheckTxConfigs while a dependency is unresolved.
	ErrLoading = errors.New("transaction config is still loading")
)

// EmptyAddressError means no recipient was entered.
type EmptyAddressError struct{}

func (EmptyAddressError) Error() string { return "recipient address is empty" }

// InvalidBech32Error means the recipient is not a bech32 address with the
// chain's prefix.
type InvalidBech32Error struct {
	Prefix string
	Err    error
}

func (e *InvalidBech32Error) Error() string {
	return fmt.Sprintf("invalid bech32 address (expected prefix %q): %v", e.Prefix, e.Err)
}

func (e *InvalidBech32Error) Unwrap() error { return e.Err }

// InvalidHexError means the recipient is not a 20-byte hex address.
type InvalidHexError struct {
	Address string
}

func (e *InvalidHexError) Error() string {
	return fmt.Sprintf("invalid hex address: %s", e.Address)
}

// InvalidAddressError covers bitcoin and tron address formats.
type InvalidAddressError struct {
	ChainID string
	Err     error
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address for %s: %v", e.ChainID, e.Err)
}

func (e *InvalidAddressError) Unwrap() error { return e.Err }

// ENSNotSupportedError means an ENS name was entered on a chain that cannot
// resolve it.
type ENSNotSupportedError struct {
	Name string
}

func (e *ENSNotSupportedError) Error() string {
	return fmt.Sprintf("ens names are not supported: %s", e.Name)
}

// EmptyAmountError means no amount was entered.
type EmptyAmountError struct{}

func (EmptyAmountError) Error() string { return "amount is empty" }

// InvalidNumberAmountError means the amount is not a decimal number.
type InvalidNumberAmountError struct {
	Input string
}

func (e *InvalidNumberAmountError) Error() string {
	return fmt.Sprintf("invalid number: %q", e.Input)
}

// ZeroAmountError means the amount is zero at the currency's precision.
type ZeroAmountError struct{}

func (ZeroAmountError) Error() string { return "amount is zero" }

// NegativeAmountError means the amount is below zero.
type NegativeAmountError struct{}

func (NegativeAmountError) Error() string { return "amount is negative" }

// InsufficientAmountError means the balance does not cover the amount.
type InsufficientAmountError struct {
	Need string
	Have string
}

func (e *InsufficientAmountError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s, have %s", e.Need, e.Have)
}

// NotLoadedFeeError means the fee could not be computed yet.
type NotLoadedFeeError struct {
	Denom string
}

func (e *NotLoadedFeeError) Error() string {
	return fmt.Sprintf("fee for %s is not loaded", e.Denom)
}

// InsufficientFeeError means the balance does not cover fee plus amount.
type InsufficientFeeError struct {
	Need string
	Have string
}

func (e *InsufficientFeeError) Error() string {
	return fmt.Sprintf("insufficient fee: need %s, have %s", e.Need, e.Have)
}

// InvalidGasError means the gas limit is zero or not an integer.
type InvalidGasError struct {
	Input string
}

func (e *InvalidGasError) Error() string {
	if e.Input == "" {
		return "gas must be positive"
	}
	return fmt.Sprintf("invalid gas: %q", e.Input)
}

// MemoTooLongError means the memo exceeds the chain's limit.
type MemoTooLongError struct {
	Max int
}

func (e *MemoTooLongError) Error() string {
	return fmt.Sprintf("memo is longer than %d bytes", e.Max)
}

// UnknownCurrencyWarning means the amount currency has no metadata, so the
// amount is interpreted in minimal units.
type UnknownCurrencyWarning struct {
	Denom string
}

func (e *UnknownCurrencyWarning) Error() string {
	return fmt.Sprintf("unknown currency %s", e.Denom)
}
