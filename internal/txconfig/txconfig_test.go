package txconfig

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/internal/reactive"
)

const hub = "cosmoshub-4"

type fakeImpl struct {
	reactive.Subject

	mu  sync.Mutex
	bal balance.Balance
}

func (f *fakeImpl) Balance() balance.Balance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bal
}

func (f *fakeImpl) set(amount int64) {
	f.mu.Lock()
	f.bal.Amount = big.NewInt(amount)
	f.bal.Ready = true
	f.mu.Unlock()
	f.Notify()
}

func (f *fakeImpl) Fetch(context.Context) error { return nil }
func (f *fakeImpl) IsFetching() bool              { return false }
func (f *fakeImpl) Error() *query.Error           { return nil }
func (f *fakeImpl) Observe() func()               { return func() {} }

type fakeBalances map[string]*fakeImpl

func (b fakeBalances) Impl(denom string) balance.Impl {
	if f, ok := b[denom]; ok {
		return f
	}
	return nil
}

func newBalances(chains *chain.Store, chainID string, denoms ...string) fakeBalances {
	b := make(fakeBalances)
	for _, d := range denoms {
		b[d] = &fakeImpl{bal: balance.NotReady(chain.ForceFindCurrency(chains, chainID, d))}
	}
	return b
}

func testChains() *chain.Store {
	return chain.NewStore(chain.Defaults()...)
}

func cosmosAddr(t *testing.T, prefix string, fill byte) string {
	t.Helper()
	data := make([]byte, 20)
	for i := range data {
		data[i] = fill
	}
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := bech32.Encode(prefix, conv)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestCircularWiring(t *testing.T) {
	chains := testChains()
	bals := newBalances(chains, hub, "uatom")
	bals["uatom"].set(1_000_000)

	cfgs, err := NewTxConfigs(chains, hub, bals, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	defer cfgs.Close()

	cfgs.Amount.SetFraction(1)

	// average step 0.025 x 200000 gas
	fee, cur := cfgs.Fee.Fee()
	if fee.Int64() != 5000 || cur.CoinMinimalDenom != "uatom" {
		t.Fatalf("fee = %s %s", fee, cur.CoinMinimalDenom)
	}
	if got := cfgs.Amount.Amount().Int64(); got != 995_000 {
		t.Errorf("max amount = %d, want 995000", got)
	}
	if err := CheckTxConfigs(cfgs.Amount, cfgs.Fee, cfgs.Gas); err != nil {
		t.Errorf("check: %v", err)
	}

	cfgs.Gas.SetGas(400_000)
	if got := cfgs.Amount.Amount().Int64(); got != 990_000 {
		t.Errorf("after gas change amount = %d, want 990000", got)
	}

	cfgs.Fee.SetFeeType(FeeHigh)
	if got := cfgs.Amount.Amount().Int64(); got != 988_000 {
		t.Errorf("after fee change amount = %d, want 988000", got)
	}
	if p := cfgs.Fee.UIProperties(); p.Error != nil || p.Loading {
		t.Errorf("fee props = %+v", p)
	}

	if err := cfgs.Amount.SetFeeConfig(cfgs.Fee); !errors.Is(err, ErrAlreadyWired) {
		t.Errorf("second wiring err = %v", err)
	}
}

func TestMaxOnlyReducedForFeeCurrency(t *testing.T) {
	chains := testChains()
	ibc := "ibc/27394FB092D2ECCD56123C74F36E4C1F926001CEADA9CA97EA622B25F41E5EB2"
	bals := newBalances(chains, hub, "uatom", ibc)
	bals["uatom"].set(1_000_000)
	bals[ibc].set(42)

	cfgs, err := NewTxConfigs(chains, hub, bals, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	cfgs.Amount.SetCurrency(ibc)
	cfgs.Amount.SetFraction(1)

	if got := cfgs.Amount.Amount().Int64(); got != 42 {
		t.Errorf("amount = %d, want the whole balance", got)
	}
	p := cfgs.Amount.UIProperties()
	var warn *UnknownCurrencyWarning
	if p.Error != nil || !errors.As(p.Warning, &warn) {
		t.Errorf("props = %+v", p)
	}
	if p.Status() != StatusValid {
		t.Errorf("status = %s", p.Status())
	}
}

func TestAmountValidation(t *testing.T) {
	chains := testChains()
	bals := newBalances(chains, hub, "uatom")
	bals["uatom"].set(1_000_000)

	tests := []struct {
		amount string
		check  func(error) bool
	}{
		{"", func(err error) bool { return errors.As(err, new(EmptyAmountError)) }},
		{"abc", func(err error) bool { return errors.As(err, new(*InvalidNumberAmountError)) }},
		{"-1", func(err error) bool { return errors.As(err, new(NegativeAmountError)) }},
		{"0", func(err error) bool { return errors.As(err, new(ZeroAmountError)) }},
		{"0.0000001", func(err error) bool { return errors.As(err, new(ZeroAmountError)) }},
		{"2", func(err error) bool { return errors.As(err, new(*InsufficientAmountError)) }},
		{"0.5", func(err error) bool { return err == nil }},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			cfgs, err := NewTxConfigs(chains, hub, bals, 200_000)
			if err != nil {
				t.Fatal(err)
			}
			cfgs.Amount.SetAmount(tt.amount)
			if p := cfgs.Amount.UIProperties(); !tt.check(p.Error) {
				t.Errorf("error = %v", p.Error)
			}
		})
	}
}

func TestLoadingUntilBalance(t *testing.T) {
	chains := testChains()
	bals := newBalances(chains, hub, "uatom")

	cfgs, err := NewTxConfigs(chains, hub, bals, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	if cfgs.Amount.Status() != StatusUninitialized {
		t.Errorf("status = %s", cfgs.Amount.Status())
	}
	cfgs.Amount.SetAmount("0.5")
	if p := cfgs.Amount.UIProperties(); !p.Loading {
		t.Fatalf("props = %+v, want loading", p)
	}
	if p := cfgs.Fee.UIProperties(); !p.Loading {
		t.Fatalf("fee props = %+v, want loading", p)
	}

	changes := 0
	unsub := cfgs.Amount.Subscribe(func() { changes++ })
	defer unsub()

	bals["uatom"].set(1_000_000)
	if changes == 0 {
		t.Error("no change notification after balance arrived")
	}
	if p := cfgs.Amount.UIProperties(); p.Loading || p.Error != nil {
		t.Errorf("props = %+v", p)
	}
	if cfgs.Amount.Status() != StatusValid {
		t.Errorf("status = %s", cfgs.Amount.Status())
	}
}

func TestInsufficientFee(t *testing.T) {
	chains := testChains()
	bals := newBalances(chains, hub, "uatom")
	bals["uatom"].set(1_000_000)

	cfgs, err := NewTxConfigs(chains, hub, bals, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	cfgs.Amount.SetAmount("0.999")

	if p := cfgs.Amount.UIProperties(); p.Error != nil {
		t.Errorf("amount error = %v", p.Error)
	}
	var feeErr *InsufficientFeeError
	if p := cfgs.Fee.UIProperties(); !errors.As(p.Error, &feeErr) {
		t.Fatalf("fee error = %v", p.Error)
	}
	if feeErr.Need != "1.004 ATOM" {
		t.Errorf("need = %s", feeErr.Need)
	}

	cfgs.Fee.SetManualFee(big.NewInt(1000))
	if p := cfgs.Fee.UIProperties(); p.Error != nil {
		t.Errorf("manual fee error = %v", p.Error)
	}
}

func TestNotLoadedFee(t *testing.T) {
	chains := testChains()
	bals := newBalances(chains, hub, "uatom")
	cfgs, err := NewTxConfigs(chains, hub, bals, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	cfgs.Fee.SetFeeCurrency("uosmo")
	var notLoaded *NotLoadedFeeError
	if p := cfgs.Fee.UIProperties(); !errors.As(p.Error, &notLoaded) || notLoaded.Denom != "uosmo" {
		t.Errorf("err = %v", p.Error)
	}
}

func TestEVMFee(t *testing.T) {
	chains := testChains()
	eth := chain.EIP155Prefix + "1"
	bals := newBalances(chains, eth, "ethereum-native")
	bals["ethereum-native"].set(1_000_000_000_000_000_000)

	cfgs, err := NewTxConfigs(chains, eth, bals, 21_000)
	if err != nil {
		t.Fatal(err)
	}
	fee, _ := cfgs.Fee.Fee()
	if fee.String() != "31500000000000" {
		t.Errorf("fee = %s", fee)
	}
}

func TestGasConfig(t *testing.T) {
	g := NewGasConfig(100_000)
	if p := g.UIProperties(); p.Error != nil {
		t.Fatal(p.Error)
	}
	g.SetGasString("lots")
	var gasErr *InvalidGasError
	if p := g.UIProperties(); !errors.As(p.Error, &gasErr) || gasErr.Input != "lots" {
		t.Errorf("err = %v", p.Error)
	}
	g.SetGas(0)
	if p := g.UIProperties(); !errors.As(p.Error, &gasErr) {
		t.Errorf("err = %v", p.Error)
	}
	g.SetGasString(" 250000 ")
	if g.Gas() != 250_000 || g.UIProperties().Error != nil {
		t.Errorf("gas = %d", g.Gas())
	}
}

func TestMemoConfig(t *testing.T) {
	m := NewMemoConfig(0)
	m.SetMemo("thanks")
	if err := m.UIProperties().Error; err != nil {
		t.Fatal(err)
	}
	long := make([]byte, DefaultMemoLength+1)
	for i := range long {
		long[i] = 'a'
	}
	m.SetMemo(string(long))
	var memoErr *MemoTooLongError
	if !errors.As(m.UIProperties().Error, &memoErr) || memoErr.Max != DefaultMemoLength {
		t.Errorf("err = %v", m.UIProperties().Error)
	}
}

func TestRecipient(t *testing.T) {
	chains := testChains()
	eth := chain.EIP155Prefix + "1"

	tests := []struct {
		name    string
		chainID string
		addr    string
		check   func(error) bool
	}{
		{"empty", hub, "", func(err error) bool { return errors.As(err, new(EmptyAddressError)) }},
		{"bech32", hub, cosmosAddr(t, "cosmos", 1), func(err error) bool { return err == nil }},
		{"wrong prefix", hub, cosmosAddr(t, "osmo", 1), func(err error) bool {
			var e *InvalidBech32Error
			return errors.As(err, &e) && e.Prefix == "cosmos"
		}},
		{"hex", eth, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", func(err error) bool { return err == nil }},
		{"short hex", eth, "0x1234", func(err error) bool { return errors.As(err, new(*InvalidHexError)) }},
		{"ens", eth, "vitalik.eth", func(err error) bool { return errors.As(err, new(*ENSNotSupportedError)) }},
		{"bitcoin", chain.BitcoinMainnetID, "bc1qnotanaddress", func(err error) bool { return errors.As(err, new(*InvalidAddressError)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecipientConfig(chains, tt.chainID)
			r.SetRecipient(tt.addr)
			if p := r.UIProperties(); !tt.check(p.Error) {
				t.Errorf("error = %v", p.Error)
			}
		})
	}
}

func TestCheckTxConfigs(t *testing.T) {
	chains := testChains()
	bals := newBalances(chains, hub, "uatom")

	cfgs, err := NewTxConfigs(chains, hub, bals, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	cfgs.Recipient.SetRecipient(cosmosAddr(t, "cosmos", 7))
	cfgs.Amount.SetAmount("0.1")

	if err := cfgs.Check(); !errors.Is(err, ErrLoading) {
		t.Errorf("err = %v, want ErrLoading", err)
	}

	bals["uatom"].set(1_000_000)
	if err := cfgs.Check(); err != nil {
		t.Errorf("err = %v", err)
	}

	cfgs.Recipient.SetRecipient("")
	err = cfgs.Check()
	if !errors.As(err, new(EmptyAddressError)) || !IsValidationError(err) {
		t.Errorf("err = %v", err)
	}
}
