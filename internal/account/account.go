// Package account holds one long-lived account per chain. An account is a
// Base (key, addresses, wallet status, sending state) plus the protocol
// capabilities its chain declares.
package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/keyring"
	"github.com/klingon-exchange/walletstore/internal/notify"
	"github.com/klingon-exchange/walletstore/internal/queries"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/internal/reactive"
	"github.com/klingon-exchange/walletstore/internal/router"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

var (
	ErrNotLoaded      = errors.New("account is not loaded")
	ErrAlreadySending = errors.New("account is already sending a message")
	// ErrReset is returned by an Init overtaken by a keyring lock.
	ErrReset = errors.New("account was reset while loading")
)

// WalletStatus is the load state of an account's key.
type WalletStatus string

const (
	WalletNotInitialized WalletStatus = "not-initialized"
	WalletLoading        WalletStatus = "loading"
	WalletLoaded         WalletStatus = "loaded"
	WalletNotExist       WalletStatus = "not-exist"
	WalletRejected       WalletStatus = "rejected"
)

// Options configures every account of a Store.
type Options struct {
	// Retry bounds receipt and inclusion polling.
	Retry helpers.RetryOptions
	// BroadcastMode is passed to the Cosmos broadcast endpoint.
	BroadcastMode string
	// Encoder turns a signed Cosmos transaction into broadcastable bytes.
	Encoder TxEncoder
}

// DefaultOptions returns the polling defaults.
func DefaultOptions() Options {
	return Options{Retry: helpers.DefaultRetryOptions(), Encoder: EncodeStdTx}
}

// Store memoizes one Account per chain.
type Store struct {
	queries  *queries.Store
	keyring  keyring.Keyring
	router   *router.Router
	notifier notify.Notifier
	opts     Options
	log      *logging.Logger

	accounts *query.Map[string, *Account]

	mu     sync.Mutex
	unsubs []func()
}

// NewStore creates a Store. Signing requests go through r; transaction
// lifecycle notifications go to n.
func NewStore(qs *queries.Store, kr keyring.Keyring, r *router.Router, n notify.Notifier, opts Options) *Store {
	if opts.Encoder == nil {
		opts.Encoder = EncodeStdTx
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = helpers.DefaultRetryOptions()
	}
	s := &Store{
		queries:  qs,
		keyring:  kr,
		router:   r,
		notifier: n,
		opts:     opts,
		log:      logging.GetDefault().Component("account"),
	}
	s.accounts = query.NewMap(s.create)
	return s
}

// Get returns the account of chainID. Revisions of one chain share an
// account.
func (s *Store) Get(chainID string) (*Account, error) {
	view, err := s.queries.Get(chainID)
	if err != nil {
		return nil, err
	}
	return s.accounts.Get(view.Info().ChainID), nil
}

// Range calls fn for every account created so far.
func (s *Store) Range(fn func(acc *Account) bool) {
	s.accounts.Range(func(_ string, acc *Account) bool { return fn(acc) })
}

// Close detaches every account from the keyring.
func (s *Store) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

func (s *Store) create(chainID string) *Account {
	view, _ := s.queries.Get(chainID)
	base := &Base{
		info:     view.Info(),
		view:     view,
		keyring:  s.keyring,
		router:   s.router,
		notifier: s.notifier,
		opts:     s.opts,
		log:      s.log.With("chain", chainID),
		status:   WalletNotInitialized,
	}
	acc := compose(base, view)

	unsub := s.keyring.Subscribe(func() {
		if s.keyring.Status() == keyring.StatusUnlocked {
			go func() {
				if err := acc.Init(context.Background()); err != nil && !errors.Is(err, ErrReset) {
					base.log.Warn("failed to load account", "err", err)
				}
			}()
			return
		}
		base.reset()
	})
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
	return acc
}

// Account is a Base plus the capabilities of its chain.
type Account struct {
	*Base

	cosmos   *CosmosAccount
	cosmwasm *CosmwasmAccount
	evm      *EVMAccount
	bitcoin  *BitcoinAccount
	tron     *TronAccount
}

// compose picks capabilities from the chain kind and features.
func compose(base *Base, view *queries.Chain) *Account {
	acc := &Account{Base: base}
	info := view.Info()
	if q, ok := view.Cosmos(); ok {
		acc.cosmos = &CosmosAccount{base: base, queries: q}
		if info.HasFeature(chain.FeatureCosmwasm) {
			acc.cosmwasm = &CosmwasmAccount{cosmos: acc.cosmos}
		}
	}
	if q, ok := view.EVM(); ok {
		acc.evm = &EVMAccount{base: base, queries: q}
	}
	if q, ok := view.Bitcoin(); ok {
		acc.bitcoin = &BitcoinAccount{base: base, queries: q}
	}
	if q, ok := view.Tron(); ok {
		acc.tron = &TronAccount{base: base, queries: q}
	}
	return acc
}

func (a *Account) Cosmos() (*CosmosAccount, bool)     { return a.cosmos, a.cosmos != nil }
func (a *Account) Cosmwasm() (*CosmwasmAccount, bool) { return a.cosmwasm, a.cosmwasm != nil }
func (a *Account) EVM() (*EVMAccount, bool)           { return a.evm, a.evm != nil }
func (a *Account) Bitcoin() (*BitcoinAccount, bool)   { return a.bitcoin, a.bitcoin != nil }
func (a *Account) Tron() (*TronAccount, bool)         { return a.tron, a.tron != nil }

// Base is the state every account shares.
type Base struct {
	info     *chain.ChainInfo
	view     *queries.Chain
	keyring  keyring.Keyring
	router   *router.Router
	notifier notify.Notifier
	opts     Options
	log      *logging.Logger
	subject  reactive.Subject

	mu      sync.RWMutex
	gen     uint64
	status  WalletStatus
	key     keyring.Key
	bech32  string
	hex     string
	lastErr error
	sending string
}

// Init loads the key and addresses from the keyring. A reset while the
// key is being loaded wins: the loaded key is dropped and ErrReset returned.
func (b *Base) Init(ctx context.Context) error {
	b.mu.Lock()
	gen := b.gen
	b.mu.Unlock()
	b.setStatus(gen, WalletLoading, nil)

	key, err := b.keyring.GetKey(ctx, b.info)
	if err != nil {
		switch {
		case errors.Is(err, keyring.ErrEmpty):
			b.setStatus(gen, WalletNotExist, err)
		case errors.Is(err, keyring.ErrLocked):
			b.setStatus(gen, WalletNotInitialized, err)
		default:
			b.setStatus(gen, WalletRejected, err)
		}
		return err
	}
	bech32Addr, hexAddr, err := key.Addresses(b.info)
	if err != nil {
		b.setStatus(gen, WalletRejected, err)
		return fmt.Errorf("failed to derive addresses: %w", err)
	}

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return ErrReset
	}
	b.key = key
	b.bech32 = bech32Addr
	b.hex = hexAddr
	b.status = WalletLoaded
	b.lastErr = nil
	b.mu.Unlock()
	b.subject.Notify()
	b.log.Debug("account loaded", "address", b.Address())
	return nil
}

// setStatus applies status unless a reset happened since generation gen.
func (b *Base) setStatus(gen uint64, status WalletStatus, err error) {
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.status = status
	b.lastErr = err
	b.mu.Unlock()
	b.subject.Notify()
}

func (b *Base) reset() {
	b.mu.Lock()
	b.gen++
	b.key = keyring.Key{}
	b.bech32, b.hex = "", ""
	b.status = WalletNotInitialized
	b.lastErr = nil
	b.mu.Unlock()
	b.subject.Notify()
}

// ChainID returns the chain of the account.
func (b *Base) ChainID() string { return b.info.ChainID }

// ChainInfo returns the chain description.
func (b *Base) ChainInfo() *chain.ChainInfo { return b.info }

// Subscribe fires on status, address and sending changes.
func (b *Base) Subscribe(fn func()) func() { return b.subject.Subscribe(fn) }

// WalletStatus returns the load state.
func (b *Base) WalletStatus() WalletStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Err returns the last load error.
func (b *Base) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

// Key returns the public key.
func (b *Base) Key() keyring.Key {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.key
}

// Bech32Address returns the bech32 (or base58 for Tron) address.
func (b *Base) Bech32Address() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bech32
}

// HexAddress returns the 0x address on EVM-capable chains.
func (b *Base) HexAddress() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hex
}

// Address returns the address balances are queried with.
func (b *Base) Address() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.info.Kind() == chain.KindEVM {
		return b.hex
	}
	return b.bech32
}

// IsSendingMsg returns the kind of message being sent, or "".
func (b *Base) IsSendingMsg() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sending
}

// Balances returns the balance set of the account address.
func (b *Base) Balances() (*balance.Set, error) {
	addr := b.Address()
	if addr == "" {
		return nil, ErrNotLoaded
	}
	return b.view.Balances(addr), nil
}

func (b *Base) beginSending(kind string) error {
	b.mu.Lock()
	if b.sending != "" {
		b.mu.Unlock()
		return ErrAlreadySending
	}
	b.sending = kind
	b.mu.Unlock()
	b.subject.Notify()
	return nil
}

func (b *Base) endSending() {
	b.mu.Lock()
	b.sending = ""
	b.mu.Unlock()
	b.subject.Notify()
}

func (b *Base) notify(level notify.Level, title, message string) {
	if b.notifier == nil {
		return
	}
	b.notifier.Create(notify.New(level, title, message).ForChain(b.info.ChainID))
}

// refreshBalances refetches every listed balance after a transaction
// settles.
func (b *Base) refreshBalances(ctx context.Context) {
	set, err := b.Balances()
	if err != nil {
		return
	}
	if err := set.Fetch(ctx); err != nil {
		b.log.Debug("balance refresh failed", "err", err)
	}
}
