// Package chain defines chain descriptions in the Keplr chain-registry shape,
// the store that serves them, and the currency registrar contract used to
// resolve denominations that no chain lists statically.
package chain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Configuration errors. These indicate a bad chain description, not a
// runtime condition, and are never retried.
var (
	ErrChainNotFound     = errors.New("chain not found")
	ErrCurrencyNotFound  = errors.New("currency not found")
	ErrEVMInfoMissing    = errors.New("chain has no evm info")
	ErrInvalidChainInfo  = errors.New("invalid chain info")
	ErrBech32ConfigEmpty = errors.New("chain has no bech32 config")
)

// Kind is the protocol family of a chain.
type Kind string

const (
	KindCosmos  Kind = "cosmos"
	KindEVM     Kind = "evm"
	KindBitcoin Kind = "bitcoin"
	KindTron    Kind = "tron"
)

// Chain id prefixes for non-Cosmos chains.
const (
	EIP155Prefix = "eip155:"
	BIP122Prefix = "bip122:"
	TronPrefix   = "tron:"
)

// Feature flags found in ChainInfo.Features.
const (
	FeatureCosmwasm    = "cosmwasm"
	FeatureIBCTransfer = "ibc-transfer"
	FeatureEthKeySign  = "eth-key-sign"
	FeatureEthAddress  = "eth-address-gen"
	FeatureNoStaking   = "no-staking"
)

// Currency describes one denomination.
type Currency struct {
	CoinDenom        string `json:"coinDenom" yaml:"coin_denom"`
	CoinMinimalDenom string `json:"coinMinimalDenom" yaml:"coin_minimal_denom"`
	CoinDecimals     uint8  `json:"coinDecimals" yaml:"coin_decimals"`
	CoinGeckoID      string `json:"coinGeckoId,omitempty" yaml:"coin_gecko_id,omitempty"`
	CoinImageURL     string `json:"coinImageUrl,omitempty" yaml:"coin_image_url,omitempty"`
}

// GasPriceStep is the fee-per-gas for each fee tier, in minimal units.
type GasPriceStep struct {
	Low     float64 `json:"low" yaml:"low"`
	Average float64 `json:"average" yaml:"average"`
	High    float64 `json:"high" yaml:"high"`
}

// FeeCurrency is a Currency that can pay fees.
type FeeCurrency struct {
	Currency     `yaml:",inline"`
	GasPriceStep *GasPriceStep `json:"gasPriceStep,omitempty" yaml:"gas_price_step,omitempty"`
}

// Bip44 holds the coin type used for key derivation.
type Bip44 struct {
	CoinType uint32 `json:"coinType" yaml:"coin_type"`
}

// Bech32Config holds the address prefixes of a Cosmos chain.
type Bech32Config struct {
	Bech32PrefixAccAddr  string `json:"bech32PrefixAccAddr" yaml:"acc_addr"`
	Bech32PrefixAccPub   string `json:"bech32PrefixAccPub" yaml:"acc_pub"`
	Bech32PrefixValAddr  string `json:"bech32PrefixValAddr" yaml:"val_addr"`
	Bech32PrefixValPub   string `json:"bech32PrefixValPub" yaml:"val_pub"`
	Bech32PrefixConsAddr string `json:"bech32PrefixConsAddr" yaml:"cons_addr"`
	Bech32PrefixConsPub  string `json:"bech32PrefixConsPub" yaml:"cons_pub"`
}

// NewBech32Config derives every prefix from the account prefix.
func NewBech32Config(prefix string) *Bech32Config {
	return &Bech32Config{
		Bech32PrefixAccAddr:  prefix,
		Bech32PrefixAccPub:   prefix + "pub",
		Bech32PrefixValAddr:  prefix + "valoper",
		Bech32PrefixValPub:   prefix + "valoperpub",
		Bech32PrefixConsAddr: prefix + "valcons",
		Bech32PrefixConsPub:  prefix + "valconspub",
	}
}

// EVMInfo is present on chains that expose an Ethereum JSON-RPC endpoint.
type EVMInfo struct {
	ChainID   uint64 `json:"chainId" yaml:"chain_id"`
	RPC       string `json:"rpc" yaml:"rpc"`
	WebSocket string `json:"websocket,omitempty" yaml:"websocket,omitempty"`
}

// ChainInfo describes one chain.
type ChainInfo struct {
	RPC                 string        `json:"rpc" yaml:"rpc"`
	Rest                string        `json:"rest" yaml:"rest"`
	ChainID             string        `json:"chainId" yaml:"chain_id"`
	ChainName           string        `json:"chainName" yaml:"chain_name"`
	ChainSymbolImageURL string        `json:"chainSymbolImageUrl,omitempty" yaml:"chain_symbol_image_url,omitempty"`
	Bip44               Bip44         `json:"bip44" yaml:"bip44"`
	Bech32Config        *Bech32Config `json:"bech32Config,omitempty" yaml:"bech32_config,omitempty"`
	Currencies          []Currency    `json:"currencies" yaml:"currencies"`
	FeeCurrencies       []FeeCurrency `json:"feeCurrencies" yaml:"fee_currencies"`
	StakeCurrency       *Currency     `json:"stakeCurrency,omitempty" yaml:"stake_currency,omitempty"`
	Features            []string      `json:"features,omitempty" yaml:"features,omitempty"`
	EVM                 *EVMInfo      `json:"evm,omitempty" yaml:"evm,omitempty"`
}

// Kind derives the protocol family from the chain id.
func (c *ChainInfo) Kind() Kind {
	switch {
	case strings.HasPrefix(c.ChainID, EIP155Prefix):
		return KindEVM
	case strings.HasPrefix(c.ChainID, BIP122Prefix):
		return KindBitcoin
	case strings.HasPrefix(c.ChainID, TronPrefix):
		return KindTron
	default:
		return KindCosmos
	}
}

// HasFeature reports whether the chain declares feature f.
func (c *ChainInfo) HasFeature(f string) bool {
	for _, feature := range c.Features {
		if feature == f {
			return true
		}
	}
	return false
}

// EVMChainID returns the numeric EVM chain id.
func (c *ChainInfo) EVMChainID() (uint64, error) {
	if c.EVM != nil {
		return c.EVM.ChainID, nil
	}
	if c.Kind() == KindEVM {
		id, err := strconv.ParseUint(strings.TrimPrefix(c.ChainID, EIP155Prefix), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidChainInfo, c.ChainID, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrEVMInfoMissing, c.ChainID)
}

// EVMRPC returns the JSON-RPC endpoint of an EVM-capable chain.
func (c *ChainInfo) EVMRPC() (string, error) {
	if c.EVM != nil && c.EVM.RPC != "" {
		return c.EVM.RPC, nil
	}
	if c.Kind() == KindEVM && c.RPC != "" {
		return c.RPC, nil
	}
	return "", fmt.Errorf("%w: %s", ErrEVMInfoMissing, c.ChainID)
}

// IsEVMCapable reports whether the chain can serve EVM queries.
func (c *ChainInfo) IsEVMCapable() bool {
	_, err := c.EVMRPC()
	return err == nil
}

// Bech32Prefix returns the account address prefix.
func (c *ChainInfo) Bech32Prefix() (string, error) {
	if c.Bech32Config == nil || c.Bech32Config.Bech32PrefixAccAddr == "" {
		return "", fmt.Errorf("%w: %s", ErrBech32ConfigEmpty, c.ChainID)
	}
	return c.Bech32Config.Bech32PrefixAccAddr, nil
}

// FindStaticCurrency searches the currencies listed on the chain itself.
func (c *ChainInfo) FindStaticCurrency(denom string) (Currency, bool) {
	for _, cur := range c.Currencies {
		if cur.CoinMinimalDenom == denom {
			return cur, true
		}
	}
	for _, fc := range c.FeeCurrencies {
		if fc.CoinMinimalDenom == denom {
			return fc.Currency, true
		}
	}
	if c.StakeCurrency != nil && c.StakeCurrency.CoinMinimalDenom == denom {
		return *c.StakeCurrency, true
	}
	return Currency{}, false
}

// FeeCurrency returns the fee currency for denom.
func (c *ChainInfo) FeeCurrency(denom string) (FeeCurrency, bool) {
	for _, fc := range c.FeeCurrencies {
		if fc.CoinMinimalDenom == denom {
			return fc, true
		}
	}
	return FeeCurrency{}, false
}

// NativeCurrency returns the main currency of the chain: the stake
// currency, else the first fee currency, else the first currency.
func (c *ChainInfo) NativeCurrency() (Currency, error) {
	switch {
	case c.StakeCurrency != nil:
		return *c.StakeCurrency, nil
	case len(c.FeeCurrencies) > 0:
		return c.FeeCurrencies[0].Currency, nil
	case len(c.Currencies) > 0:
		return c.Currencies[0], nil
	}
	return Currency{}, fmt.Errorf("%w: %s has no currencies", ErrCurrencyNotFound, c.ChainID)
}

// DefaultPurpose is the BIP-43 purpose used for key derivation.
func (c *ChainInfo) DefaultPurpose() uint32 {
	if c.Kind() == KindBitcoin {
		return 84
	}
	return 44
}

// DerivationPath returns m/purpose'/coin'/account'/change/index.
func (c *ChainInfo) DerivationPath(account, change, index uint32) []uint32 {
	return []uint32{
		c.DefaultPurpose() + 0x80000000,
		c.Bip44.CoinType + 0x80000000,
		account + 0x80000000,
		change,
		index,
	}
}

// DerivationPathString formats DerivationPath.
func (c *ChainInfo) DerivationPathString(account, change, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", c.DefaultPurpose(), c.Bip44.CoinType, account, change, index)
}

// Validate checks the fields every consumer relies on.
func (c *ChainInfo) Validate() error {
	if c.ChainID == "" {
		return fmt.Errorf("%w: empty chain id", ErrInvalidChainInfo)
	}
	if c.ChainName == "" {
		return fmt.Errorf("%w: %s: empty chain name", ErrInvalidChainInfo, c.ChainID)
	}
	if len(c.Currencies) == 0 {
		return fmt.Errorf("%w: %s: no currencies", ErrInvalidChainInfo, c.ChainID)
	}
	if c.Kind() == KindCosmos {
		if c.Rest == "" {
			return fmt.Errorf("%w: %s: empty rest endpoint", ErrInvalidChainInfo, c.ChainID)
		}
		if _, err := c.Bech32Prefix(); err != nil {
			return err
		}
	}
	if c.Kind() == KindEVM {
		if _, err := c.EVMChainID(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool)
	for _, cur := range c.Currencies {
		if cur.CoinMinimalDenom == "" {
			return fmt.Errorf("%w: %s: currency without minimal denom", ErrInvalidChainInfo, c.ChainID)
		}
		if seen[cur.CoinMinimalDenom] {
			return fmt.Errorf("%w: %s: duplicate currency %s", ErrInvalidChainInfo, c.ChainID, cur.CoinMinimalDenom)
		}
		seen[cur.CoinMinimalDenom] = true
	}
	return nil
}

var versionSuffix = regexp.MustCompile(`^(.+)-([\d]+)$`)

// Identifier strips the revision suffix from a Cosmos chain id so that
// "cosmoshub-4" and "cosmoshub-5" name the same chain.
func Identifier(chainID string) string {
	if strings.Contains(chainID, ":") {
		return strings.ToLower(chainID)
	}
	if m := versionSuffix.FindStringSubmatch(chainID); m != nil {
		return strings.ToLower(m[1])
	}
	return strings.ToLower(chainID)
}

// SplitDenom splits "erc20:0xabc" into ("erc20", "0xabc"). Plain denoms
// return an empty kind.
func SplitDenom(denom string) (kind, rest string) {
	if i := strings.Index(denom, ":"); i > 0 {
		return denom[:i], denom[i+1:]
	}
	return "", denom
}
