package txconfig

import (
	"strings"

	"github.com/klingon-exchange/walletstore/internal/bitcoin"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
	"github.com/klingon-exchange/walletstore/internal/evm"
	"github.com/klingon-exchange/walletstore/internal/reactive"
	"github.com/klingon-exchange/walletstore/internal/tron"
)

// RecipientConfig holds the destination address.
type RecipientConfig struct {
	base

	chains  chain.Getter
	chainID string

	recipient string
}

// NewRecipientConfig creates a RecipientConfig for chainID.
func NewRecipientConfig(chains chain.Getter, chainID string) *RecipientConfig {
	c := &RecipientConfig{chains: chains, chainID: chainID}
	c.props = reactive.NewComputed(c.compute, &c.inputs)
	return c
}

// SetRecipient sets the destination.
func (c *RecipientConfig) SetRecipient(addr string) {
	c.mu.Lock()
	c.recipient = strings.TrimSpace(addr)
	c.mu.Unlock()
	c.touch()
}

// Recipient returns the destination.
func (c *RecipientConfig) Recipient() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recipient
}

func (c *RecipientConfig) compute() UIProperties {
	addr := c.Recipient()
	if addr == "" {
		return UIProperties{Error: EmptyAddressError{}}
	}
	info, err := c.chains.Get(c.chainID)
	if err != nil {
		return UIProperties{Error: err}
	}
	if strings.HasSuffix(strings.ToLower(addr), ".eth") {
		return UIProperties{Error: &ENSNotSupportedError{Name: addr}}
	}

	switch info.Kind() {
	case chain.KindEVM:
		if evm.ValidateAddress(addr) != nil {
			return UIProperties{Error: &InvalidHexError{Address: addr}}
		}
	case chain.KindBitcoin:
		if err := bitcoin.ValidateAddress(addr, c.chainID); err != nil {
			return UIProperties{Error: &InvalidAddressError{ChainID: c.chainID, Err: err}}
		}
	case chain.KindTron:
		if err := tron.ValidateAddress(addr); err != nil {
			return UIProperties{Error: &InvalidAddressError{ChainID: c.chainID, Err: err}}
		}
	default:
		if info.IsEVMCapable() && strings.HasPrefix(addr, "0x") {
			if evm.ValidateAddress(addr) != nil {
				return UIProperties{Error: &InvalidHexError{Address: addr}}
			}
			return UIProperties{}
		}
		prefix, err := info.Bech32Prefix()
		if err != nil {
			return UIProperties{Error: err}
		}
		if err := cosmos.ValidateAddress(addr, prefix); err != nil {
			return UIProperties{Error: &InvalidBech32Error{Prefix: prefix, Err: err}}
		}
	}
	return UIProperties{}
}
