// Package thirdparty resolves balances through a batched third-party
// balance API. One request per chain and address returns every denom, and
// each per-denom balance delegates its fetch to that shared parent.
package thirdparty

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/klingon-exchange/walletstore/internal/balance"
	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
)

// BalancesPath is the batched balance endpoint.
const BalancesPath = "/api/skip/v2/info/balances"

// ErrDenomFailed marks a denom the API answered with an error entry.
var ErrDenomFailed = errors.New("balance unavailable for denom")

type chainRequest struct {
	Address string   `json:"address"`
	Denoms  []string `json:"denoms"`
}

type balancesRequest struct {
	Chains map[string]chainRequest `json:"chains"`
}

// DenomBalance is one entry of the response.
type DenomBalance struct {
	Amount          string `json:"amount"`
	Decimals        uint8  `json:"decimals,omitempty"`
	FormattedAmount string `json:"formatted_amount,omitempty"`
	Error           *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// BalancesResponse is the batched answer keyed by API chain id and denom.
type BalancesResponse struct {
	Chains map[string]struct {
		Denoms map[string]DenomBalance `json:"denoms"`
	} `json:"chains"`
}

// AmountOf returns the amount of denom on apiChainID, or nil when absent
// or reported with an error.
func (r BalancesResponse) AmountOf(apiChainID, denom string) *big.Int {
	d, ok := r.lookup(apiChainID, denom)
	if !ok || d.Error != nil {
		return nil
	}
	n, ok := new(big.Int).SetString(d.Amount, 10)
	if !ok {
		return nil
	}
	return n
}

// DenomError returns the message of an error entry for denom, if any.
func (r BalancesResponse) DenomError(apiChainID, denom string) (string, bool) {
	d, ok := r.lookup(apiChainID, denom)
	if !ok || d.Error == nil {
		return "", false
	}
	return d.Error.Message, true
}

func (r BalancesResponse) lookup(apiChainID, denom string) (DenomBalance, bool) {
	c, ok := r.Chains[apiChainID]
	if !ok {
		return DenomBalance{}, false
	}
	d, ok := c.Denoms[denom]
	return d, ok
}

// APIChainID maps a chain id to the API's: "eip155:1" becomes "1".
func APIChainID(chainID string) string {
	return strings.TrimPrefix(chainID, chain.EIP155Prefix)
}

// APIDenom maps a denom to the API's: "erc20:0xabc" becomes "0xabc".
func APIDenom(denom string) string {
	if kind, rest := chain.SplitDenom(denom); kind == "erc20" {
		return rest
	}
	return denom
}

type parentKey struct {
	chainID string
	address string
}

// parent is the batched query of one chain and address. Concurrent
// fetches share one flight; the flight runs on a context owned by the
// parent that is cancelled only when every waiter has gone.
type parent struct {
	query *query.ObservableQuery[BalancesResponse]
	group singleflight.Group

	mu      sync.Mutex
	waiters int
	flight  context.Context
	cancel  context.CancelFunc
}

func (p *parent) join() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flight == nil {
		p.flight, p.cancel = context.WithCancel(context.Background())
	}
	p.waiters++
	return p.flight
}

func (p *parent) leave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiters--
	if p.waiters > 0 {
		return
	}
	p.cancel()
	p.flight, p.cancel = nil, nil
}

// fetch collapses concurrent fetches of the parent into one.
func (p *parent) fetch(ctx context.Context) error {
	flight := p.join()
	defer p.leave()

	ch := p.group.DoChan("fetch", func() (interface{}, error) {
		return nil, p.query.Fetch(flight)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BalanceRegistry serves balances for the configured chains. Register it
// before the per-protocol registries.
type BalanceRegistry struct {
	baseURL string
	chains  map[string]bool
	parents *query.Map[parentKey, *parent]
}

// NewBalanceRegistry creates the registry for chainIDs.
func NewBalanceRegistry(shared *query.SharedContext, baseURL string, chainIDs []string, opts query.Options) *BalanceRegistry {
	r := &BalanceRegistry{baseURL: baseURL, chains: make(map[string]bool)}
	for _, id := range chainIDs {
		r.chains[chain.Identifier(id)] = true
	}
	r.parents = query.NewMap(func(k parentKey) *parent {
		body := balancesRequest{Chains: map[string]chainRequest{
			APIChainID(k.chainID): {Address: k.address, Denoms: []string{}},
		}}
		o := opts
		o.CanFetch = func() bool { return k.address != "" }
		q, err := query.NewJSONPost[BalancesResponse](shared, baseURL, BalancesPath, body, o)
		if err != nil {
			panic(err)
		}
		return &parent{query: q}
	})
	return r
}

// Supports reports whether chainID is served by the API.
func (r *BalanceRegistry) Supports(chainID string) bool {
	return r.chains[chain.Identifier(chainID)]
}

func (r *BalanceRegistry) GetBalanceImpl(chainID string, chains chain.Getter, address, denom string) balance.Impl {
	if address == "" || !r.Supports(chainID) {
		return nil
	}
	info, err := chains.Get(chainID)
	if err != nil {
		return nil
	}
	p := r.parents.Get(parentKey{chainID: info.ChainID, address: address})
	apiChain := APIChainID(info.ChainID)
	apiDenom := APIDenom(denom)
	return &childImpl{
		QueryImpl: balance.NewQueryImpl(p.query, chains, chainID, denom,
			func(data BalancesResponse, _ string) *big.Int { return data.AmountOf(apiChain, apiDenom) }),
		parent:   p,
		apiChain: apiChain,
		apiDenom: apiDenom,
	}
}

// childImpl reads its denom out of the parent response and fetches through
// the parent. A denom answered with an error entry stays not ready.
type childImpl struct {
	*balance.QueryImpl[BalancesResponse]
	parent   *parent
	apiChain string
	apiDenom string
}

func (c *childImpl) Fetch(ctx context.Context) error {
	return c.parent.fetch(ctx)
}

func (c *childImpl) Balance() balance.Balance {
	b := c.QueryImpl.Balance()
	if _, failed := c.denomError(); failed {
		return balance.NotReady(b.Currency)
	}
	return b
}

func (c *childImpl) Error() *query.Error {
	if err := c.QueryImpl.Error(); err != nil {
		return err
	}
	resp, failed := c.denomError()
	if !failed {
		return nil
	}
	return &query.Error{Kind: query.KindRPC, Message: resp.message, Timestamp: resp.at, Err: ErrDenomFailed}
}

type denomFailure struct {
	message string
	at      time.Time
}

func (c *childImpl) denomError() (denomFailure, bool) {
	resp := c.parent.query.Response()
	if resp == nil {
		return denomFailure{}, false
	}
	msg, failed := resp.Data.DenomError(c.apiChain, c.apiDenom)
	return denomFailure{message: msg, at: resp.Timestamp}, failed
}

var (
	_ balance.Registry = (*BalanceRegistry)(nil)
	_ balance.Impl     = (*childImpl)(nil)
)
