package keyring

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/klingon-exchange/walletstore/internal/bitcoin"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
	"github.com/klingon-exchange/walletstore/internal/tron"
)

// Keccak256 hashes data the Ethereum way.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// ethHash is the 20-byte account hash of Ethereum and Tron.
func (k Key) ethHash() ([]byte, error) {
	pub, err := btcec.ParsePubKey(k.PubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return Keccak256(pub.SerializeUncompressed()[1:])[12:], nil
}

// EthereumAddress returns the EIP-55 checksummed hex address.
func (k Key) EthereumAddress() (string, error) {
	hash, err := k.ethHash()
	if err != nil {
		return "", err
	}
	return common.BytesToAddress(hash).Hex(), nil
}

// Bech32Address returns the account address under prefix. Chains with
// Ethereum-style address generation hash the key with Keccak.
func (k Key) Bech32Address(prefix string, ethStyle bool) (string, error) {
	if !ethStyle {
		return cosmos.AddressFromPubKey(k.PubKey, prefix)
	}
	hash, err := k.ethHash()
	if err != nil {
		return "", err
	}
	conv, err := bech32.ConvertBits(hash, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, conv)
}

// BitcoinAddress returns the native segwit address on chainID's network.
func (k Key) BitcoinAddress(chainID string) (string, error) {
	params, err := bitcoin.Params(chainID)
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(k.PubKey), params)
	if err != nil {
		return "", fmt.Errorf("failed to create P2WPKH address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// TronAddress returns the base58check "T..." address.
func (k Key) TronAddress() (string, error) {
	hash, err := k.ethHash()
	if err != nil {
		return "", err
	}
	return tron.AddressFromHash(hash), nil
}

// Addresses returns the addresses of k on info.
func (k Key) Addresses(info *chain.ChainInfo) (bech32Addr, hexAddr string, err error) {
	switch info.Kind() {
	case chain.KindEVM:
		hexAddr, err = k.EthereumAddress()
		return "", hexAddr, err
	case chain.KindBitcoin:
		bech32Addr, err = k.BitcoinAddress(info.ChainID)
		return bech32Addr, "", err
	case chain.KindTron:
		// Tron addresses are base58; they travel in the first slot.
		bech32Addr, err = k.TronAddress()
		return bech32Addr, "", err
	}
	prefix, err := info.Bech32Prefix()
	if err != nil {
		return "", "", err
	}
	ethStyle := info.HasFeature(chain.FeatureEthAddress)
	if bech32Addr, err = k.Bech32Address(prefix, ethStyle); err != nil {
		return "", "", err
	}
	if ethStyle || info.IsEVMCapable() {
		if hexAddr, err = k.EthereumAddress(); err != nil {
			return "", "", err
		}
	}
	return bech32Addr, hexAddr, nil
}
