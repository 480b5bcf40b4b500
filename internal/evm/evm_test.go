package evm

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

const (
	testOwner = "0x1111111111111111111111111111111111111111"
	testToken = "0x2222222222222222222222222222222222222222"
)

type rpcCall struct {
	ID     int               `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcServer answers JSON-RPC calls, single or batched, with handler.
func rpcServer(t *testing.T, handler func(c rpcCall) (interface{}, *rpcErr)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		answer := func(c rpcCall) map[string]interface{} {
			result, rerr := handler(c)
			out := map[string]interface{}{"jsonrpc": "2.0", "id": c.ID}
			if rerr != nil {
				out["error"] = rerr
			} else {
				out["result"] = result
			}
			return out
		}
		if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			var calls []rpcCall
			json.Unmarshal(raw, &calls)
			var out []map[string]interface{}
			for _, c := range calls {
				out = append(out, answer(c))
			}
			json.NewEncoder(w).Encode(out)
			return
		}
		var c rpcCall
		json.Unmarshal(raw, &c)
		json.NewEncoder(w).Encode(answer(c))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newTestStore(t *testing.T, rpcURL string) (*Store, *chain.Store) {
	t.Helper()
	infos := chain.Defaults()
	for i := range infos {
		if infos[i].EVM != nil {
			infos[i].EVM.RPC = rpcURL
		}
	}
	chains := chain.NewStore(infos...)
	shared := query.NewSharedContext(query.ContextOptions{Registerer: prometheus.NewRegistry(), Logger: logging.Discard()})
	return NewStore(shared, chains, query.Options{}), chains
}

func callData(t *testing.T, c rpcCall) string {
	t.Helper()
	var msg struct {
		To   string `json:"to"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(c.Params[0], &msg); err != nil {
		t.Errorf("bad eth_call params: %v", err)
	}
	return msg.Data
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{testOwner, true},
		{"0xdAC17F958D2ee523a2206206994597C13D831ec7", true},
		{"1111111111111111111111111111111111111111", false},
		{"0x1234", false},
		{"vitalik.eth", false},
		{"", false},
	}
	for _, tt := range tests {
		err := ValidateAddress(tt.addr)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateAddress(%q) = %v, want valid=%v", tt.addr, err, tt.valid)
		}
	}
}

func TestNativeBalance(t *testing.T) {
	srv := rpcServer(t, func(c rpcCall) (interface{}, *rpcErr) {
		if c.Method != "eth_getBalance" {
			t.Errorf("unexpected method %s", c.Method)
		}
		return "0xde0b6b3a7640000", nil
	})
	store, chains := newTestStore(t, srv.URL)
	reg := NewNativeBalanceRegistry(store)

	if reg.GetBalanceImpl("eip155:1", chains, testOwner, "erc20:"+testToken) != nil {
		t.Error("erc20 denom accepted by native registry")
	}
	if reg.GetBalanceImpl("eip155:1", chains, "cosmos1abc", "ethereum-native") != nil {
		t.Error("bech32 address accepted")
	}
	if reg.GetBalanceImpl("cosmoshub-4", chains, testOwner, "uatom") != nil {
		t.Error("chain without evm accepted")
	}

	impl := reg.GetBalanceImpl("eip155:1", chains, testOwner, "ethereum-native")
	if impl == nil {
		t.Fatal("native balance rejected")
	}
	if impl.Balance().Ready {
		t.Error("ready before fetch")
	}
	if err := impl.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := impl.Balance().String(); got != "1 ETH" {
		t.Errorf("balance = %s, want 1 ETH", got)
	}
}

func TestERC20Balance(t *testing.T) {
	want, _ := PackBalanceOf(testOwner)
	srv := rpcServer(t, func(c rpcCall) (interface{}, *rpcErr) {
		if c.Method != "eth_call" {
			return nil, &rpcErr{Code: -32601, Message: "method not found"}
		}
		if got := callData(t, c); got != hexutil.Encode(want) {
			t.Errorf("call data = %s", got)
		}
		return "0x00000000000000000000000000000000000000000000000000000000000f4240", nil
	})
	store, chains := newTestStore(t, srv.URL)
	reg := NewERC20BalanceRegistry(store)

	if reg.GetBalanceImpl("eip155:1", chains, testOwner, "erc20:nothex") != nil {
		t.Error("invalid contract accepted")
	}
	impl := reg.GetBalanceImpl("eip155:1", chains, testOwner, "erc20:0xdAC17F958D2ee523a2206206994597C13D831ec7")
	if impl == nil {
		t.Fatal("erc20 balance rejected")
	}
	if err := impl.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := impl.Balance().String(); got != "1 USDT" {
		t.Errorf("balance = %s, want 1 USDT", got)
	}
}

func TestTokenInfoBatch(t *testing.T) {
	symbol, _ := erc20ABI.Methods["symbol"].Outputs.Pack("FOO")
	decimals, _ := erc20ABI.Methods["decimals"].Outputs.Pack(uint8(18))
	var requests atomic.Int32
	srv := rpcServer(t, func(c rpcCall) (interface{}, *rpcErr) {
		requests.Add(1)
		switch callData(t, c) {
		case hexutil.Encode(packNoArgs("symbol")):
			return hexutil.Encode(symbol), nil
		case hexutil.Encode(packNoArgs("decimals")):
			return hexutil.Encode(decimals), nil
		}
		return nil, &rpcErr{Code: -32000, Message: "execution reverted"}
	})
	store, _ := newTestStore(t, srv.URL)
	q, err := store.Get("eip155:1")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := q.TokenInfo(testToken).WaitResponse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Data.Symbol != "FOO" || resp.Data.Decimals != 18 {
		t.Errorf("token info = %+v", resp.Data)
	}
	if requests.Load() != 2 {
		t.Errorf("batched calls = %d, want 2", requests.Load())
	}
}

func TestUnpackSymbolBytes32(t *testing.T) {
	data := make([]byte, 32)
	copy(data, "MKR")
	got, err := UnpackSymbol(data)
	if err != nil || got != "MKR" {
		t.Errorf("UnpackSymbol = %q, %v", got, err)
	}
}

func TestRPCErrorStored(t *testing.T) {
	srv := rpcServer(t, func(c rpcCall) (interface{}, *rpcErr) {
		return nil, &rpcErr{Code: -32005, Message: "rate limited"}
	})
	store, _ := newTestStore(t, srv.URL)
	q, _ := store.Get("eip155:1")

	bal := q.Balance(testOwner)
	err := bal.Fetch(context.Background())
	if !errors.Is(err, query.ErrRPC) {
		t.Fatalf("err = %v, want ErrRPC", err)
	}
	if qe := bal.Error(); qe == nil || qe.Code != -32005 {
		t.Errorf("stored error = %+v", qe)
	}
}

func signedTx(t *testing.T) ([]byte, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(1e9),
		Gas:      21000,
		Value:    big.NewInt(1),
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(1)), key)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return raw, signed.Hash().Hex()
}

func TestSendRawTransactionAndWaitReceipt(t *testing.T) {
	raw, hash := signedTx(t)
	var receiptCalls atomic.Int32
	srv := rpcServer(t, func(c rpcCall) (interface{}, *rpcErr) {
		switch c.Method {
		case "eth_sendRawTransaction":
			return hash, nil
		case "eth_getTransactionReceipt":
			if receiptCalls.Add(1) < 3 {
				return nil, nil
			}
			return map[string]string{"transactionHash": hash, "blockNumber": "0x10", "status": "0x1", "gasUsed": "0x5208"}, nil
		}
		return nil, &rpcErr{Code: -32601, Message: "method not found"}
	})
	store, _ := newTestStore(t, srv.URL)
	q, _ := store.Get("eip155:1")

	got, err := q.SendRawTransaction(context.Background(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if got != hash {
		t.Errorf("hash = %s, want %s", got, hash)
	}

	opts := helpers.RetryOptions{MaxRetries: 5, WaitAfterError: time.Millisecond, MaxWaitAfterError: 4 * time.Millisecond}
	receipt, err := q.WaitReceipt(context.Background(), hash, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !receipt.Succeeded() || uint64(receipt.GasUsed) != 21000 {
		t.Errorf("receipt = %+v", receipt)
	}
	if receiptCalls.Load() != 3 {
		t.Errorf("receipt polls = %d, want 3", receiptCalls.Load())
	}
}

func TestWaitReceiptReverted(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(c rpcCall) (interface{}, *rpcErr) {
		calls.Add(1)
		return map[string]string{"transactionHash": "0xabc", "blockNumber": "0x10", "status": "0x0"}, nil
	})
	store, _ := newTestStore(t, srv.URL)
	q, _ := store.Get("eip155:1")

	_, err := q.WaitReceipt(context.Background(), "0xabc", helpers.DefaultRetryOptions())
	if !errors.Is(err, ErrReverted) {
		t.Errorf("err = %v, want ErrReverted", err)
	}
	if calls.Load() != 1 {
		t.Errorf("polls = %d, want 1", calls.Load())
	}
}

func TestSendRawTransactionRejectsGarbage(t *testing.T) {
	store, _ := newTestStore(t, "http://127.0.0.1:1")
	q, _ := store.Get("eip155:1")
	if _, err := q.SendRawTransaction(context.Background(), []byte{0x01, 0x02}); !errors.Is(err, ErrBroadcastFailed) {
		t.Errorf("err = %v, want ErrBroadcastFailed", err)
	}
}

func TestStoreRequiresEVM(t *testing.T) {
	store, _ := newTestStore(t, "http://127.0.0.1:1")
	if _, err := store.Get("cosmoshub-4"); !errors.Is(err, chain.ErrEVMInfoMissing) {
		t.Errorf("err = %v, want ErrEVMInfoMissing", err)
	}
	a, _ := store.Get("eip155:1")
	b, _ := store.Get("eip155:1")
	if a != b {
		t.Error("Get returned different query sets")
	}
}
