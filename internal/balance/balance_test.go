package balance

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

type amounts map[string]string

func extractAmounts(data amounts, denom string) *big.Int {
	v, ok := data[denom]
	if !ok {
		return nil
	}
	n, _ := new(big.Int).SetString(v, 10)
	return n
}

func testChains() *chain.Store {
	return chain.NewStore(chain.Defaults()...)
}

func newShared() *query.SharedContext {
	return query.NewSharedContext(query.ContextOptions{
		Registerer: prometheus.NewRegistry(),
		Logger:     logging.Discard(),
	})
}

func TestBalanceReadiness(t *testing.T) {
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		json.NewEncoder(w).Encode(amounts{"uatom": "1500000"})
	}))
	defer srv.Close()

	chains := testChains()
	q := query.NewJSON[amounts](newShared(), query.Get(srv.URL, "/"), query.Options{})
	impl := NewQueryImpl(q, chains, "cosmoshub-4", "uatom", extractAmounts)

	before := impl.Balance()
	if before.Ready || before.Amount.Sign() != 0 {
		t.Fatalf("before response: %+v", before)
	}

	close(gate)
	if err := impl.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	after := impl.Balance()
	if !after.Ready {
		t.Error("balance not ready after response")
	}
	if got := after.Display().String(); got != "1.5" {
		t.Errorf("display = %s, want 1.5", got)
	}
	if after.String() != "1.5 ATOM" {
		t.Errorf("String = %s", after.String())
	}
}

func TestBalanceFailedFetchNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	q := query.NewJSON[amounts](newShared(), query.Get(srv.URL, "/"), query.Options{})
	impl := NewQueryImpl(q, testChains(), "cosmoshub-4", "uatom", extractAmounts)
	if err := impl.Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if b := impl.Balance(); b.Ready || b.Amount.Sign() != 0 {
		t.Errorf("failed fetch produced %+v", b)
	}
	if impl.Error() == nil {
		t.Error("error not exposed")
	}
}

type stubImpl struct {
	name string
	bal  Balance
}

func (s *stubImpl) Balance() Balance { return s.bal }

func (s *stubImpl) Fetch(context.Context) error { return nil }

func (s *stubImpl) IsFetching() bool { return false }

func (s *stubImpl) Error() *query.Error { return nil }

func (s *stubImpl) Subscribe(func()) func() { return func() {} }

func (s *stubImpl) Observe() func() { return func() {} }

func prefixRegistry(name, prefix string, calls *[]string) Registry {
	return RegistryFunc(func(chainID string, chains chain.Getter, address, denom string) Impl {
		*calls = append(*calls, name)
		if !strings.HasPrefix(denom, prefix) {
			return nil
		}
		cur := chain.ForceFindCurrency(chains, chainID, denom)
		return &stubImpl{name: name, bal: Balance{Currency: cur, Amount: big.NewInt(7), Ready: true}}
	})
}

func TestRegistryOrder(t *testing.T) {
	var calls []string
	q := NewQueries(testChains(),
		prefixRegistry("erc20", "erc20:", &calls),
		prefixRegistry("any-a", "", &calls),
		prefixRegistry("any-b", "", &calls),
	)

	impl := q.GetBalanceImpl("eip155:1", "0xabc", "erc20:0xdead")
	if impl.(*stubImpl).name != "erc20" {
		t.Errorf("got %s, want erc20", impl.(*stubImpl).name)
	}

	calls = nil
	impl = q.GetBalanceImpl("eip155:1", "0xabc", "ethereum-native")
	if impl.(*stubImpl).name != "any-a" {
		t.Errorf("got %s, want any-a", impl.(*stubImpl).name)
	}
	if len(calls) != 2 {
		t.Errorf("registries consulted after a match: %v", calls)
	}
}

func TestSetMemoizes(t *testing.T) {
	var calls []string
	q := NewQueries(testChains(), prefixRegistry("all", "", &calls))

	s1 := q.For("cosmoshub-4", "cosmos1abc")
	s2 := q.For("cosmoshub-4", "cosmos1abc")
	if s1 != s2 {
		t.Error("For returned different sets")
	}
	if s1.Impl("uatom") != s2.Impl("uatom") {
		t.Error("Impl returned different instances")
	}
	if len(calls) != 1 {
		t.Errorf("registry consulted %d times, want 1", len(calls))
	}
	if q.For("cosmoshub-4", "cosmos1xyz") == s1 {
		t.Error("different address shares a set")
	}
}

func TestSetUnhandledDenom(t *testing.T) {
	q := NewQueries(testChains())
	b := q.For("cosmoshub-4", "cosmos1abc").Balance("uatom")
	if b.Ready {
		t.Error("unhandled denom reported ready")
	}
	if b.Currency.CoinDenom != "ATOM" {
		t.Errorf("currency = %+v", b.Currency)
	}
}

func TestSetStakable(t *testing.T) {
	var calls []string
	q := NewQueries(testChains(), prefixRegistry("all", "", &calls))
	b, err := q.For("osmosis-1", "osmo1abc").Stakable()
	if err != nil {
		t.Fatal(err)
	}
	if b.Currency.CoinMinimalDenom != "uosmo" || b.Amount.Int64() != 7 || !b.Ready {
		t.Errorf("stakable = %+v", b)
	}
}
