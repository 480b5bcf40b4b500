package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/walletstore/internal/account"
	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/keyring"
)

// Version of the daemon
const Version = "0.1.0-dev"

// currencyWait bounds currencies_find when the caller asks to wait.
const currencyWait = 10 * time.Second

// ========================================
// Chain handlers
// ========================================

// ChainSummary is one entry of chains_list.
type ChainSummary struct {
	ChainID   string          `json:"chain_id"`
	ChainName string          `json:"chain_name"`
	Kind      chain.Kind      `json:"kind"`
	Features  []string        `json:"features,omitempty"`
	Native    *chain.Currency `json:"native,omitempty"`
}

func (s *Server) chainsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	infos := s.queries.Chains().List()
	result := make([]ChainSummary, 0, len(infos))
	for _, info := range infos {
		summary := ChainSummary{
			ChainID:   info.ChainID,
			ChainName: info.ChainName,
			Kind:      info.Kind(),
			Features:  info.Features,
		}
		if native, err := info.NativeCurrency(); err == nil {
			summary.Native = &native
		}
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChainID < result[j].ChainID })
	return result, nil
}

// ChainParams selects a chain.
type ChainParams struct {
	ChainID string `json:"chain_id"`
}

func (s *Server) chainsGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.queries.Chains().Get(p.ChainID)
}

// CurrencyFindParams is the parameters for currencies_find.
type CurrencyFindParams struct {
	ChainID string `json:"chain_id"`
	Denom   string `json:"denom"`
	// Wait blocks until every registrar has answered.
	Wait bool `json:"wait"`
}

// CurrencyFindResult is the response for currencies_find.
type CurrencyFindResult struct {
	Currency *chain.Currency `json:"currency"`
	Resolved bool            `json:"resolved"`
}

func (s *Server) currenciesFind(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p CurrencyFindParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Denom == "" {
		return nil, invalidParams("denom is required")
	}
	chains := s.queries.Chains()
	if !chains.Has(p.ChainID) {
		return nil, invalidParams("unknown chain %s", p.ChainID)
	}

	if p.Wait {
		ctx, cancel := context.WithTimeout(ctx, currencyWait)
		defer cancel()
		cur, err := chains.WaitCurrency(ctx, p.ChainID, p.Denom)
		if err != nil {
			return nil, err
		}
		return &CurrencyFindResult{Currency: cur, Resolved: true}, nil
	}

	cur, done := chains.FindCurrency(p.ChainID, p.Denom)
	return &CurrencyFindResult{Currency: cur, Resolved: done}, nil
}

// ========================================
// Keyring handlers
// ========================================

// KeyringStatusResult is the response for keyring_status.
type KeyringStatusResult struct {
	Status  keyring.Status `json:"status"`
	Version string         `json:"version"`
}

func (s *Server) keyringStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return &KeyringStatusResult{Status: s.keyring.Status(), Version: Version}, nil
}

// KeyringGenerateResult is the response for keyring_generate.
type KeyringGenerateResult struct {
	Mnemonic string `json:"mnemonic"`
}

func (s *Server) keyringGenerate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	mnemonic, err := keyring.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	return &KeyringGenerateResult{Mnemonic: mnemonic}, nil
}

// KeyringCreateParams is the parameters for keyring_create.
type KeyringCreateParams struct {
	Mnemonic string `json:"mnemonic"`
	Password string `json:"password"`
}

func (s *Server) keyringCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p KeyringCreateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Mnemonic == "" {
		return nil, invalidParams("mnemonic is required")
	}
	if p.Password == "" {
		return nil, invalidParams("password is required")
	}
	if err := s.keyring.Create(ctx, p.Mnemonic, p.Password); err != nil {
		return nil, err
	}
	return &KeyringStatusResult{Status: s.keyring.Status(), Version: Version}, nil
}

// KeyringUnlockParams is the parameters for keyring_unlock.
type KeyringUnlockParams struct {
	Password string `json:"password"`
}

func (s *Server) keyringUnlock(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p KeyringUnlockParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := s.keyring.Unlock(ctx, p.Password); err != nil {
		return nil, err
	}
	return &KeyringStatusResult{Status: s.keyring.Status(), Version: Version}, nil
}

func (s *Server) keyringLock(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.keyring.Lock()
	return &KeyringStatusResult{Status: s.keyring.Status(), Version: Version}, nil
}

// ========================================
// Account handlers
// ========================================

// AccountInfo describes one account.
type AccountInfo struct {
	ChainID       string               `json:"chain_id"`
	Status        account.WalletStatus `json:"status"`
	Address       string               `json:"address,omitempty"`
	Bech32Address string               `json:"bech32_address,omitempty"`
	HexAddress    string               `json:"hex_address,omitempty"`
	PubKey        string               `json:"pub_key,omitempty"`
	Path          string               `json:"path,omitempty"`
	Sending       string               `json:"sending,omitempty"`
	Error         string               `json:"error,omitempty"`
}

func accountInfo(acc *account.Account) *AccountInfo {
	info := &AccountInfo{
		ChainID:       acc.ChainID(),
		Status:        acc.WalletStatus(),
		Address:       acc.Address(),
		Bech32Address: acc.Bech32Address(),
		HexAddress:    acc.HexAddress(),
		Sending:       acc.IsSendingMsg(),
	}
	if key := acc.Key(); len(key.PubKey) > 0 {
		info.PubKey = hex.EncodeToString(key.PubKey)
		info.Path = key.Path
	}
	if err := acc.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

// loadAccount returns the account of chainID, initializing it when the
// keyring is unlocked but the account has not loaded yet.
func (s *Server) loadAccount(ctx context.Context, chainID string) (*account.Account, error) {
	if chainID == "" {
		return nil, invalidParams("chain_id is required")
	}
	acc, err := s.accounts.Get(chainID)
	if err != nil {
		return nil, err
	}
	s.watchAccount(acc)
	if acc.WalletStatus() != account.WalletLoaded && s.keyring.Status() == keyring.StatusUnlocked {
		if err := acc.Init(ctx); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// watchAccount forwards status changes of acc to WebSocket clients once.
func (s *Server) watchAccount(acc *account.Account) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watched == nil {
		s.watched = make(map[string]func())
	}
	if _, ok := s.watched[acc.ChainID()]; ok {
		return
	}
	last := acc.WalletStatus()
	s.watched[acc.ChainID()] = acc.Subscribe(func() {
		status := acc.WalletStatus()
		s.watchMu.Lock()
		changed := status != last
		last = status
		s.watchMu.Unlock()
		if changed {
			s.wsHub.BroadcastChain(EventAccountStatus, acc.ChainID(), accountInfo(acc))
		}
	})
}

func (s *Server) accountGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	acc, err := s.loadAccount(ctx, p.ChainID)
	if err != nil {
		return nil, err
	}
	return accountInfo(acc), nil
}

func (s *Server) accountList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	result := make([]*AccountInfo, 0)
	s.accounts.Range(func(acc *account.Account) bool {
		result = append(result, accountInfo(acc))
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ChainID < result[j].ChainID })
	return result, nil
}

// ========================================
// Balance handlers
// ========================================

// BalancesParams is the parameters for balances_get.
type BalancesParams struct {
	ChainID string `json:"chain_id"`
	// Address defaults to the account address.
	Address string `json:"address,omitempty"`
	// Denoms defaults to every currency the chain lists.
	Denoms []string `json:"denoms,omitempty"`
}

// BalanceInfo is one balance entry.
type BalanceInfo struct {
	Denom    string `json:"denom"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Amount   string `json:"amount"`
	Display  string `json:"display"`
	Ready    bool   `json:"ready"`
	Error    string `json:"error,omitempty"`
}

// BalancesResult is the response for balances_get.
type BalancesResult struct {
	ChainID  string        `json:"chain_id"`
	Address  string        `json:"address"`
	Balances []BalanceInfo `json:"balances"`
}

func (s *Server) balancesGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p BalancesParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var set *balance.Set
	if p.Address != "" {
		view, err := s.queries.Get(p.ChainID)
		if err != nil {
			return nil, err
		}
		set = view.Balances(p.Address)
	} else {
		acc, err := s.loadAccount(ctx, p.ChainID)
		if err != nil {
			return nil, err
		}
		if set, err = acc.Balances(); err != nil {
			return nil, err
		}
	}

	denoms := p.Denoms
	if len(denoms) == 0 {
		info, err := s.queries.Chains().Get(p.ChainID)
		if err != nil {
			return nil, err
		}
		for _, cur := range info.Currencies {
			denoms = append(denoms, cur.CoinMinimalDenom)
		}
	}

	impls := make([]balance.Impl, len(denoms))
	errs := make([]error, len(denoms))
	var g errgroup.Group
	for i, denom := range denoms {
		impls[i] = set.Impl(denom)
		if impls[i] == nil {
			continue
		}
		g.Go(func() error {
			errs[i] = impls[i].Fetch(ctx)
			return nil
		})
	}
	g.Wait()

	result := &BalancesResult{ChainID: set.ChainID(), Address: set.Address(), Balances: make([]BalanceInfo, 0, len(denoms))}
	for i, impl := range impls {
		if impl == nil {
			continue
		}
		b := impl.Balance()
		entry := BalanceInfo{
			Denom:    b.Currency.CoinMinimalDenom,
			Symbol:   b.Currency.CoinDenom,
			Decimals: b.Currency.CoinDecimals,
			Amount:   b.Amount.String(),
			Display:  b.Display().String(),
			Ready:    b.Ready,
		}
		if errs[i] != nil {
			entry.Error = errs[i].Error()
		}
		result.Balances = append(result.Balances, entry)
	}
	return result, nil
}
