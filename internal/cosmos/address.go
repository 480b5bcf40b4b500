package cosmos

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Address errors.
var (
	ErrEmptyAddress   = errors.New("empty address")
	ErrInvalidBech32  = errors.New("invalid bech32 address")
	ErrPrefixMismatch = errors.New("bech32 prefix mismatch")
)

// ValidateAddress checks that addr is bech32 with the expected prefix.
func ValidateAddress(addr, prefix string) error {
	if addr == "" {
		return ErrEmptyAddress
	}
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBech32, err)
	}
	if hrp != prefix {
		return fmt.Errorf("%w: got %s, want %s", ErrPrefixMismatch, hrp, prefix)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidBech32)
	}
	return nil
}

// ConvertPrefix re-encodes a bech32 address under another prefix.
func ConvertPrefix(addr, prefix string) (string, error) {
	_, data, err := bech32.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBech32, err)
	}
	return bech32.Encode(prefix, data)
}

// AddressFromPubKey derives the account address of a compressed secp256k1
// public key: bech32(prefix, ripemd160(sha256(pub))).
func AddressFromPubKey(pub []byte, prefix string) (string, error) {
	conv, err := bech32.ConvertBits(btcutil.Hash160(pub), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, conv)
}
