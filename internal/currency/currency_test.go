package currency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
	"github.com/klingon-exchange/walletstore/internal/evm"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/internal/storage"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

const fooToken = "0x3333333333333333333333333333333333333333"

func packOutput(t *testing.T, typ string, v interface{}) string {
	t.Helper()
	ty, err := abi.NewType(typ, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := abi.Arguments{{Type: ty}}.Pack(v)
	if err != nil {
		t.Fatal(err)
	}
	return hexutil.Encode(out)
}

// tokenServer answers batched symbol()/decimals() calls for FOO.
func tokenServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(tokenHandler(t, requests))
	t.Cleanup(srv.Close)
	return srv
}

func tokenHandler(t *testing.T, requests *atomic.Int32) http.Handler {
	t.Helper()
	symbol := packOutput(t, "string", "FOO")
	decimals := packOutput(t, "uint8", uint8(18))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var calls []struct {
			ID     int               `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&calls); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var out []map[string]interface{}
		for _, c := range calls {
			var msg struct {
				Data string `json:"data"`
			}
			json.Unmarshal(c.Params[0], &msg)
			result := decimals
			if strings.HasPrefix(msg.Data, "0x95d89b41") {
				result = symbol
			}
			out = append(out, map[string]interface{}{"jsonrpc": "2.0", "id": c.ID, "result": result})
		}
		json.NewEncoder(w).Encode(out)
	})
}

// flaky fails with 502 until healthy is set.
func flaky(healthy *atomic.Bool, requests *atomic.Int32, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

// resolveUntil calls resolve until done reports true or the deadline passes.
func resolveUntil(t *testing.T, resolve func() *chain.RegistrarResult, done func(*chain.RegistrarResult) bool) *chain.RegistrarResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		res := resolve()
		if done(res) {
			return res
		}
		if time.Now().After(deadline) {
			t.Fatalf("last result = %+v", res)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func unknown(res *chain.RegistrarResult) bool  { return res != nil && res.Done && res.Value == nil }
func resolved(res *chain.RegistrarResult) bool { return res != nil && res.Done && res.Value != nil }

func newERC20(t *testing.T, rpcURL string, kv storage.KVStore) (*ERC20Registrar, *chain.Store) {
	t.Helper()
	infos := chain.Defaults()
	for i := range infos {
		if infos[i].EVM != nil {
			infos[i].EVM.RPC = rpcURL
		}
	}
	chains := chain.NewStore(infos...)
	shared := query.NewSharedContext(query.ContextOptions{Registerer: prometheus.NewRegistry(), Logger: logging.Discard()})
	reg := NewERC20Registrar(evm.NewStore(shared, chains, query.Options{}), chains, kv)
	chains.AddRegistrar(reg.Resolve)
	return reg, chains
}

func TestERC20Resolve(t *testing.T) {
	var requests atomic.Int32
	srv := tokenServer(t, &requests)
	kv := storage.NewMemoryStore()
	reg, chains := newERC20(t, srv.URL, kv)
	now := time.Now()
	reg.now = func() time.Time { return now }

	denom := "erc20:" + fooToken
	if res := reg.Resolve("cosmoshub-4", denom); res != nil {
		t.Errorf("non-evm chain = %+v, want nil", res)
	}
	if res := reg.Resolve("eip155:1", "uatom"); res != nil {
		t.Errorf("plain denom = %+v, want nil", res)
	}

	first := reg.Resolve("eip155:1", denom)
	if first == nil || first.Done {
		t.Fatalf("first resolve = %+v, want pending", first)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cur, err := chains.WaitCurrency(ctx, "eip155:1", denom)
	if err != nil {
		t.Fatal(err)
	}
	want := chain.Currency{CoinDenom: "FOO", CoinMinimalDenom: denom, CoinDecimals: 18}
	if *cur != want {
		t.Errorf("currency = %+v, want %+v", *cur, want)
	}

	res := reg.Resolve("eip155:1", denom)
	if !res.Done || *res.Value != want {
		t.Errorf("second resolve = %+v", res)
	}
	entry, ok, err := storage.GetJSON[CacheEntry](context.Background(), kv, erc20CacheKey("eip155:1", fooToken))
	if err != nil || !ok {
		t.Fatalf("persisted entry missing: %v", err)
	}
	if !entry.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", entry.Timestamp, now)
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}
}

func TestERC20TTL(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		age   time.Duration
		found bool
	}{
		{"expired", ERC20TTL + time.Millisecond, false},
		{"live", ERC20TTL - time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			srv := tokenServer(t, &requests)
			kv := storage.NewMemoryStore()
			reg, _ := newERC20(t, srv.URL, kv)
			reg.now = func() time.Time { return now }

			key := erc20CacheKey("eip155:1", fooToken)
			stale := CacheEntry{
				Currency:  chain.Currency{CoinDenom: "OLD", CoinMinimalDenom: "erc20:" + fooToken, CoinDecimals: 6},
				Timestamp: now.Add(-tt.age),
			}
			if err := storage.SetJSON(context.Background(), kv, key, stale); err != nil {
				t.Fatal(err)
			}

			res := reg.Resolve("eip155:1", "erc20:"+fooToken)
			if tt.found {
				if !res.Done || res.Value.CoinDenom != "OLD" {
					t.Errorf("resolve = %+v, want cached OLD", res)
				}
				return
			}
			if res.Done {
				t.Errorf("resolve = %+v, want pending refetch", res)
			}
			if _, ok, _ := kv.Get(context.Background(), key); ok {
				t.Error("expired entry not deleted")
			}
		})
	}
}

func TestFirstChannel(t *testing.T) {
	tests := map[string]string{
		"transfer/channel-141":                   "channel-141",
		"transfer/channel-0/transfer/channel-12": "channel-0",
		"":                                       "",
	}
	for path, want := range tests {
		if got := FirstChannel(path); got != want {
			t.Errorf("FirstChannel(%q) = %q, want %q", path, got, want)
		}
	}
}

func newCosmos(t *testing.T, handler http.Handler) (*cosmos.Store, *chain.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	infos := chain.Defaults()
	for i := range infos {
		if infos[i].Kind() == chain.KindCosmos {
			infos[i].Rest = srv.URL
		}
	}
	chains := chain.NewStore(infos...)
	shared := query.NewSharedContext(query.ContextOptions{Registerer: prometheus.NewRegistry(), Logger: logging.Discard()})
	return cosmos.NewStore(shared, chains, query.Options{}), chains
}

func TestIBCRegistrar(t *testing.T) {
	store, chains := newCosmos(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ibc/apps/transfer/v1/denom_traces/ABC":
			w.Write([]byte(`{"denom_trace":{"path":"transfer/channel-141","base_denom":"uatom"}}`))
		case "/ibc/apps/transfer/v1/denom_traces/DEF":
			w.Write([]byte(`{"denom_trace":{"path":"transfer/channel-7","base_denom":"uunknown"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	reg := NewIBCRegistrar(store, chains)
	chains.AddRegistrar(reg.Resolve)

	if reg.Resolve("osmosis-1", "uosmo") != nil {
		t.Error("plain denom accepted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cur, err := chains.WaitCurrency(ctx, "osmosis-1", "ibc/ABC")
	if err != nil {
		t.Fatal(err)
	}
	if cur.CoinDenom != "ATOM (channel-141)" || cur.CoinDecimals != 6 || cur.CoinMinimalDenom != "ibc/ABC" {
		t.Errorf("currency = %+v", cur)
	}

	unknown, err := chains.WaitCurrency(ctx, "osmosis-1", "ibc/DEF")
	if err != nil {
		t.Fatal(err)
	}
	if unknown.CoinDenom != "uunknown (channel-7)" || unknown.CoinDecimals != 0 {
		t.Errorf("currency = %+v", unknown)
	}

	if _, err := chains.WaitCurrency(ctx, "osmosis-1", "ibc/MISSING"); err == nil {
		t.Error("missing trace resolved")
	}
}

func TestCW20Registrar(t *testing.T) {
	store, chains := newCosmos(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/smart/") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":{"name":"Bar","symbol":"BAR","decimals":8,"total_supply":"1"}}`))
	}))
	reg := NewCW20Registrar(store, chains)
	chains.AddRegistrar(reg.Resolve)

	if reg.Resolve("cosmoshub-4", "cw20:cosmos1contract") != nil {
		t.Error("chain without cosmwasm accepted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cur, err := chains.WaitCurrency(ctx, "osmosis-1", "cw20:osmo1contract")
	if err != nil {
		t.Fatal(err)
	}
	if cur.CoinDenom != "BAR" || cur.CoinDecimals != 8 {
		t.Errorf("currency = %+v", cur)
	}
}

func TestRegistrarsRetryAfterFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler func(t *testing.T, requests *atomic.Int32) http.Handler
		setup   func(t *testing.T, handler http.Handler) (func() *chain.RegistrarResult, *background)
		want    string
	}{
		{
			name:    "erc20",
			handler: tokenHandler,
			setup: func(t *testing.T, handler http.Handler) (func() *chain.RegistrarResult, *background) {
				srv := httptest.NewServer(handler)
				t.Cleanup(srv.Close)
				reg, _ := newERC20(t, srv.URL, nil)
				return func() *chain.RegistrarResult { return reg.Resolve("eip155:1", "erc20:"+fooToken) }, reg.bg
			},
			want: "FOO",
		},
		{
			name: "cw20",
			handler: func(*testing.T, *atomic.Int32) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(`{"data":{"name":"Bar","symbol":"BAR","decimals":8,"total_supply":"1"}}`))
				})
			},
			setup: func(t *testing.T, handler http.Handler) (func() *chain.RegistrarResult, *background) {
				store, chains := newCosmos(t, handler)
				reg := NewCW20Registrar(store, chains)
				return func() *chain.RegistrarResult { return reg.Resolve("osmosis-1", "cw20:osmo1contract") }, reg.bg
			},
			want: "BAR",
		},
		{
			name: "ibc",
			handler: func(*testing.T, *atomic.Int32) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(`{"denom_trace":{"path":"transfer/channel-141","base_denom":"uatom"}}`))
				})
			},
			setup: func(t *testing.T, handler http.Handler) (func() *chain.RegistrarResult, *background) {
				store, chains := newCosmos(t, handler)
				reg := NewIBCRegistrar(store, chains)
				return func() *chain.RegistrarResult { return reg.Resolve("osmosis-1", "ibc/ABC") }, reg.bg
			},
			want: "ATOM (channel-141)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var healthy atomic.Bool
			var requests atomic.Int32
			resolve, bg := tt.setup(t, flaky(&healthy, &requests, tt.handler(t, new(atomic.Int32))))
			bg.retry = 100 * time.Millisecond

			resolveUntil(t, resolve, unknown)
			healthy.Store(true)

			res := resolveUntil(t, resolve, resolved)
			if res.Value.CoinDenom != tt.want {
				t.Errorf("currency = %+v, want %s", res.Value, tt.want)
			}
			if requests.Load() == 0 {
				t.Error("no request issued after recovery")
			}
		})
	}
}
