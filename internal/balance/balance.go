// Package balance resolves "address + denom" to a balance through pluggable
// per-protocol registries tried in registration order.
package balance

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
	"github.com/klingon-exchange/walletstore/pkg/helpers"
)

// Balance is a currency amount in minimal units. Ready is false until a
// response arrived; Amount is zero in that case and must not be read as a
// confirmed zero balance.
type Balance struct {
	Currency chain.Currency `json:"currency"`
	Amount   *big.Int       `json:"amount"`
	Ready    bool           `json:"ready"`
}

// NotReady returns the placeholder balance of cur.
func NotReady(cur chain.Currency) Balance {
	return Balance{Currency: cur, Amount: new(big.Int)}
}

// Display returns the amount in display units.
func (b Balance) Display() decimal.Decimal {
	return helpers.ToDecimal(b.Amount, b.Currency.CoinDecimals)
}

// String formats the balance as "1.5 ATOM".
func (b Balance) String() string {
	return b.Display().String() + " " + b.Currency.CoinDenom
}

// Impl is one resolvable balance.
type Impl interface {
	Balance() Balance
	Fetch(ctx context.Context) error
	IsFetching() bool
	Error() *query.Error
	Subscribe(fn func()) func()
	Observe() func()
}

// Registry recognises one protocol's address format and denomination kind.
// It returns nil when the pair is not its concern.
type Registry interface {
	GetBalanceImpl(chainID string, chains chain.Getter, address, minimalDenom string) Impl
}

// RegistryFunc adapts a function to Registry.
type RegistryFunc func(chainID string, chains chain.Getter, address, minimalDenom string) Impl

func (f RegistryFunc) GetBalanceImpl(chainID string, chains chain.Getter, address, minimalDenom string) Impl {
	return f(chainID, chains, address, minimalDenom)
}

// Extractor pulls the amount of denom out of a parsed response. Returning
// nil means the response does not mention denom, which is a zero balance.
type Extractor[T any] func(data T, denom string) *big.Int

// QueryImpl is an Impl backed by one observable query. Several QueryImpls
// for different denoms may share the same query.
type QueryImpl[T any] struct {
	query   *query.ObservableQuery[T]
	chains  chain.Getter
	chainID string
	denom   string
	extract Extractor[T]
}

// NewQueryImpl builds a QueryImpl.
func NewQueryImpl[T any](q *query.ObservableQuery[T], chains chain.Getter, chainID, denom string, extract Extractor[T]) *QueryImpl[T] {
	return &QueryImpl[T]{query: q, chains: chains, chainID: chainID, denom: denom, extract: extract}
}

// Query returns the underlying query.
func (b *QueryImpl[T]) Query() *query.ObservableQuery[T] { return b.query }

func (b *QueryImpl[T]) Balance() Balance {
	cur := chain.ForceFindCurrency(b.chains, b.chainID, b.denom)
	resp := b.query.Response()
	if resp == nil {
		return NotReady(cur)
	}
	amount := b.extract(resp.Data, b.denom)
	if amount == nil {
		amount = new(big.Int)
	}
	return Balance{Currency: cur, Amount: amount, Ready: true}
}

func (b *QueryImpl[T]) Fetch(ctx context.Context) error {
	return b.query.Fetch(ctx)
}

func (b *QueryImpl[T]) IsFetching() bool {
	return b.query.IsFetching()
}

func (b *QueryImpl[T]) Error() *query.Error {
	return b.query.Error()
}

func (b *QueryImpl[T]) Subscribe(fn func()) func() {
	return b.query.Subscribe(fn)
}

func (b *QueryImpl[T]) Observe() func() {
	return b.query.Observe()
}

var _ Impl = (*QueryImpl[struct{}])(nil)
