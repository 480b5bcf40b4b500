package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

func testAddress() string {
	return AddressFromHash(bytes.Repeat([]byte{0x07}, 20))
}

func TestValidateAddress(t *testing.T) {
	addr := testAddress()
	if addr[0] != 'T' {
		t.Errorf("address %s does not start with T", addr)
	}
	if err := ValidateAddress(addr); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
	last := "2"
	if addr[len(addr)-1] == '2' {
		last = "3"
	}
	for _, bad := range []string{"", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", addr[:len(addr)-1] + last} {
		if ValidateAddress(bad) == nil {
			t.Errorf("ValidateAddress(%q) accepted", bad)
		}
	}
}

func TestAccountBalance(t *testing.T) {
	addr := testAddress()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Address string `json:"address"`
			Visible bool   `json:"visible"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if r.Method != http.MethodPost || r.URL.Path != "/wallet/getaccount" || !req.Visible {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Address != addr {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`{"address":"` + addr + `","balance":2500000}`))
	}))
	defer srv.Close()

	infos := chain.Defaults()
	for i := range infos {
		if infos[i].Kind() == chain.KindTron {
			infos[i].Rest = srv.URL
		}
	}
	chains := chain.NewStore(infos...)
	shared := query.NewSharedContext(query.ContextOptions{Registerer: prometheus.NewRegistry(), Logger: logging.Discard()})
	reg := NewBalanceRegistry(NewStore(shared, chains, query.Options{}))

	if reg.GetBalanceImpl(chain.TronMainnetID, chains, "0x1111111111111111111111111111111111111111", "sun") != nil {
		t.Error("hex address accepted")
	}

	impl := reg.GetBalanceImpl(chain.TronMainnetID, chains, addr, "sun")
	if impl == nil {
		t.Fatal("tron balance rejected")
	}
	if err := impl.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := impl.Balance().String(); got != "2.5 TRX" {
		t.Errorf("balance = %s", got)
	}

	empty := reg.GetBalanceImpl(chain.TronMainnetID, chains, AddressFromHash(bytes.Repeat([]byte{0x09}, 20)), "sun")
	empty.Fetch(context.Background())
	if b := empty.Balance(); !b.Ready || b.Amount.Sign() != 0 {
		t.Errorf("unfunded account = %+v", b)
	}
}
