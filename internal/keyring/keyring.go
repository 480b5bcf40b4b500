// Package keyring derives per-chain keys from a BIP39 mnemonic sealed in
// the KV store. It is the key provider behind account addresses and the
// signing route.
package keyring

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/reactive"
	"github.com/klingon-exchange/walletstore/internal/storage"
)

// SeedKey is where the sealed mnemonic lives in the KV store.
const SeedKey = "keyring/seed"

// Status is the lock state of the keyring.
type Status string

const (
	StatusEmpty    Status = "empty"
	StatusLocked   Status = "locked"
	StatusUnlocked Status = "unlocked"
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrLocked          = errors.New("keyring is locked")
	ErrEmpty           = errors.New("keyring has no seed")
	ErrExists          = errors.New("keyring already has a seed")
)

// Key is the public half of a chain key.
type Key struct {
	Name     string `json:"name"`
	PubKey   []byte `json:"pubKey"`
	CoinType uint32 `json:"coinType"`
	Path     string `json:"path"`
}

// Keyring provides keys and signatures per chain.
type Keyring interface {
	Status() Status
	Subscribe(fn func()) func()
	GetKey(ctx context.Context, info *chain.ChainInfo) (Key, error)
	Sign(ctx context.Context, info *chain.ChainInfo, digest []byte) ([]byte, error)
}

// GenerateMnemonic returns a new 24-word mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// Local is a Keyring holding the unlocked master key in memory.
type Local struct {
	kv      storage.KVStore
	name    string
	subject reactive.Subject

	mu     sync.RWMutex
	master *hdkeychain.ExtendedKey
	sealed bool
}

// NewLocal opens the keyring stored in kv.
func NewLocal(ctx context.Context, kv storage.KVStore, name string) (*Local, error) {
	k := &Local{kv: kv, name: name}
	_, ok, err := kv.Get(ctx, SeedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}
	k.sealed = ok
	return k, nil
}

// Status reports the lock state.
func (k *Local) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()
	switch {
	case k.master != nil:
		return StatusUnlocked
	case k.sealed:
		return StatusLocked
	}
	return StatusEmpty
}

// Subscribe is fired on every status change.
func (k *Local) Subscribe(fn func()) func() {
	return k.subject.Subscribe(fn)
}

// Create seals mnemonic under password and unlocks the keyring.
func (k *Local) Create(ctx context.Context, mnemonic, password string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	if k.Status() != StatusEmpty {
		return ErrExists
	}
	sealed, err := Seal(mnemonic, password)
	if err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, k.kv, SeedKey, sealed); err != nil {
		return err
	}
	master, err := masterKey(mnemonic)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.sealed = true
	k.master = master
	k.mu.Unlock()
	k.subject.Notify()
	return nil
}

// Unlock opens the sealed seed.
func (k *Local) Unlock(ctx context.Context, password string) error {
	sealed, ok, err := storage.GetJSON[SealedSeed](ctx, k.kv, SeedKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEmpty
	}
	mnemonic, err := sealed.Open(password)
	if err != nil {
		return err
	}
	master, err := masterKey(mnemonic)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.master = master
	k.mu.Unlock()
	k.subject.Notify()
	return nil
}

// Lock drops the master key from memory.
func (k *Local) Lock() {
	k.mu.Lock()
	k.master = nil
	k.mu.Unlock()
	k.subject.Notify()
}

func masterKey(mnemonic string) (*hdkeychain.ExtendedKey, error) {
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	return master, nil
}

// CoinType returns the coin type keys of info are derived with. Chains
// signing with Ethereum keys use 60 whatever their registry entry says.
func CoinType(info *chain.ChainInfo) uint32 {
	if info.Kind() == chain.KindEVM || info.HasFeature(chain.FeatureEthKeySign) {
		return 60
	}
	return info.Bip44.CoinType
}

func (k *Local) derive(info *chain.ChainInfo) (*btcec.PrivateKey, string, error) {
	k.mu.RLock()
	master := k.master
	k.mu.RUnlock()
	if master == nil {
		if k.Status() == StatusEmpty {
			return nil, "", ErrEmpty
		}
		return nil, "", ErrLocked
	}

	derived := *info
	derived.Bip44.CoinType = CoinType(info)
	key := master
	for i, idx := range derived.DerivationPath(0, 0, 0) {
		next, err := key.Derive(idx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to derive level %d: %w", i, err)
		}
		key = next
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, "", err
	}
	return priv, derived.DerivationPathString(0, 0, 0), nil
}

// GetKey returns the public key of info.
func (k *Local) GetKey(_ context.Context, info *chain.ChainInfo) (Key, error) {
	priv, path, err := k.derive(info)
	if err != nil {
		return Key{}, err
	}
	return Key{
		Name:     k.name,
		PubKey:   priv.PubKey().SerializeCompressed(),
		CoinType: CoinType(info),
		Path:     path,
	}, nil
}

// Sign signs a 32-byte digest. Ethereum-key chains get r||s||v, others
// the 64-byte r||s used by Cosmos SDK.
func (k *Local) Sign(_ context.Context, info *chain.ChainInfo, digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", sha256.Size, len(digest))
	}
	priv, _, err := k.derive(info)
	if err != nil {
		return nil, err
	}
	compact := ecdsa.SignCompact(priv, digest, false)
	if CoinType(info) == 60 {
		sig := make([]byte, 65)
		copy(sig, compact[1:])
		sig[64] = compact[0] - 27
		return sig, nil
	}
	return compact[1:], nil
}

var _ Keyring = (*Local)(nil)
