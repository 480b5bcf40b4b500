package helpers

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		decimals uint8
		want     string
	}{
		{"whole", 100000000, 8, "1"},
		{"fraction", 1500000, 6, "1.5"},
		{"small", 1500, 6, "0.0015"},
		{"zero decimals", 42, 0, "42"},
		{"zero", 0, 18, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAmount(big.NewInt(tt.amount), tt.decimals)
			if got != tt.want {
				t.Errorf("FormatAmount = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{"whole", "1", 8, "100000000", false},
		{"fraction", "1.5", 6, "1500000", false},
		{"truncates", "0.1234567", 6, "123456", false},
		{"negative", "-2", 0, "-2", false},
		{"empty", "", 6, "", true},
		{"garbage", "1.2.3", 6, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in, tt.decimals)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseAmount(%q) err = %v, want ErrInvalidAmount", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) failed: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestMulCeil(t *testing.T) {
	got := MulCeil(big.NewInt(200000), decimal.RequireFromString("0.025"))
	if got.Int64() != 5000 {
		t.Errorf("MulCeil = %s, want 5000", got)
	}

	got = MulCeil(big.NewInt(3), decimal.RequireFromString("0.5"))
	if got.Int64() != 2 {
		t.Errorf("MulCeil rounds up: got %s, want 2", got)
	}
}

func instantAfter(waits *[]time.Duration) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		*waits = append(*waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	var waits []time.Duration
	opts := RetryOptions{
		MaxRetries:        10,
		WaitAfterError:    500 * time.Millisecond,
		MaxWaitAfterError: 4000 * time.Millisecond,
		after:             instantAfter(&waits),
	}

	attempts := 0
	lastErr := errors.New("receipt not found")
	_, err := Retry(context.Background(), opts, func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 10 {
			return 0, lastErr
		}
		return 0, errors.New("still pending")
	})

	if attempts != 10 {
		t.Errorf("attempts = %d, want 10", attempts)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("err = %v, want last error", err)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("err = %v, want ErrRetriesExhausted", err)
	}

	want := []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		4000 * time.Millisecond,
		4000 * time.Millisecond,
		4000 * time.Millisecond,
		4000 * time.Millisecond,
		4000 * time.Millisecond,
	}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestRetrySucceeds(t *testing.T) {
	var waits []time.Duration
	opts := DefaultRetryOptions()
	opts.after = instantAfter(&waits)

	attempts := 0
	got, err := Retry(context.Background(), opts, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("pending")
		}
		return "0xreceipt", nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got != "0xreceipt" || attempts != 3 {
		t.Errorf("got %q after %d attempts", got, attempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	cause := errors.New("chain not configured")
	attempts := 0
	_, err := Retry(context.Background(), DefaultRetryOptions(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, Permanent(cause)
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want %v", err, cause)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := DefaultRetryOptions()
	opts.after = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	_, err := Retry(ctx, opts, func(ctx context.Context) (int, error) {
		return 0, errors.New("pending")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
