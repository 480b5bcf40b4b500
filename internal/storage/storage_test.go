package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "walletstore-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	store := newTestStorage(t)

	if _, err := os.Stat(store.Path()); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if filepath.Base(store.Path()) != "walletstore.db" {
		t.Errorf("unexpected db file %s", store.Path())
	}

	var name string
	err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='kv'").Scan(&name)
	if err != nil {
		t.Fatalf("kv table missing: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got, want := expandPath("~/.test"), filepath.Join(home, ".test"); got != want {
		t.Errorf("expandPath(~/.test) = %s, want %s", got, want)
	}
	if got := expandPath("/var/lib/x"); got != "/var/lib/x" {
		t.Errorf("expandPath changed absolute path: %s", got)
	}
}

func testKV(t *testing.T, kv KVStore) {
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := kv.Set(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set(ctx, "a", []byte("2")); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	v, ok, err := kv.Get(ctx, "a")
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("Get(a) = %q, %v, %v", v, ok, err)
	}

	if err := kv.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "a"); ok {
		t.Error("key still present after Delete")
	}

	type entry struct {
		Symbol    string `json:"symbol"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := SetJSON(ctx, kv, "currency", entry{"FOO", 42}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	got, ok, err := GetJSON[entry](ctx, kv, "currency")
	if err != nil || !ok {
		t.Fatalf("GetJSON = %v, %v", ok, err)
	}
	if got.Symbol != "FOO" || got.Timestamp != 42 {
		t.Errorf("GetJSON = %+v", got)
	}
}

func TestSQLiteKV(t *testing.T) {
	testKV(t, newTestStorage(t))
}

func TestMemoryKV(t *testing.T) {
	testKV(t, NewMemoryStore())
}

func TestPrefixedKV(t *testing.T) {
	mem := NewMemoryStore()
	testKV(t, WithPrefix(mem, "query"))

	ctx := context.Background()
	p := WithPrefix(mem, "currency")
	if err := p.Set(ctx, "erc20", []byte("x")); err != nil {
		t.Fatal(err)
	}
	keys, _ := mem.Keys(ctx, "currency/")
	if len(keys) != 1 || keys[0] != "currency/erc20" {
		t.Errorf("keys = %v", keys)
	}
}

func TestSQLiteKeys(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for _, k := range []string{"query/b", "query/a", "settings/x"} {
		if err := store.Set(ctx, k, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := store.Keys(ctx, "query/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "query/a" || keys[1] != "query/b" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), DBFileName)
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(context.Background(), "settings/x", []byte("1")); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	version, err := store.SchemaVersion()
	if err != nil || version != len(migrations) {
		t.Errorf("SchemaVersion = %d, %v; want %d", version, err, len(migrations))
	}
	if v, ok, _ := store.Get(context.Background(), "settings/x"); !ok || string(v) != "1" {
		t.Errorf("value lost across reopen: %q", v)
	}
}

func TestPrune(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for _, k := range []string{"query/old", "query/new", "settings/old"} {
		if err := store.Set(ctx, k, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	week := time.Now().Add(-7 * 24 * time.Hour).Unix()
	if _, err := store.DB().Exec(`UPDATE kv SET updated_at = ? WHERE key IN ('query/old', 'settings/old')`, week); err != nil {
		t.Fatal(err)
	}

	n, err := store.Prune(ctx, "query/", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
	keys, _ := store.Keys(ctx, "")
	if len(keys) != 2 || keys[0] != "query/new" || keys[1] != "settings/old" {
		t.Errorf("remaining keys = %v", keys)
	}
}
