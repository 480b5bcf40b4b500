// Package cosmos provides Cosmos-SDK REST queries, address helpers and the
// native and CW20 balance registries.
package cosmos

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/query"
)

// ErrNotCosmos is returned for chains without a Cosmos REST endpoint.
var ErrNotCosmos = errors.New("not a cosmos chain")

// Queries holds the memoized REST queries of one chain.
type Queries struct {
	info   *chain.ChainInfo
	shared *query.SharedContext
	opts   query.Options

	accounts     *query.Map[string, *AccountQuery]
	balances     *query.Map[string, *query.ObservableQuery[BalancesResponse]]
	delegations  *query.Map[string, *query.ObservableQuery[DelegationsResponse]]
	denomTraces  *query.Map[string, *query.ObservableQuery[DenomTraceResponse]]
	cw20Balances *query.Map[cw20Key, *query.ObservableQuery[CW20BalanceResponse]]
	cw20Infos    *query.Map[string, *query.ObservableQuery[CW20TokenInfo]]
	validators   *query.Map[string, *query.ObservableQuery[ValidatorsResponse]]
}

type cw20Key struct {
	contract string
	owner    string
}

// NewQueries builds the query set of info.
func NewQueries(shared *query.SharedContext, info *chain.ChainInfo, opts query.Options) *Queries {
	q := &Queries{info: info, shared: shared, opts: opts}

	q.accounts = query.NewMap(func(addr string) *AccountQuery {
		return &AccountQuery{query: query.New(shared,
			query.Get(info.Rest, "/cosmos/auth/v1beta1/accounts/"+addr),
			func(raw *query.RawResponse) (AccountInfo, error) { return parseAccount(raw.Body) },
			q.addressOptions(addr, false))}
	})
	q.balances = query.NewMap(func(addr string) *query.ObservableQuery[BalancesResponse] {
		return query.NewJSON[BalancesResponse](shared,
			query.Get(info.Rest, "/cosmos/bank/v1beta1/balances/"+addr+"?pagination.limit=1000"),
			q.addressOptions(addr, true))
	})
	q.delegations = query.NewMap(func(addr string) *query.ObservableQuery[DelegationsResponse] {
		return query.NewJSON[DelegationsResponse](shared,
			query.Get(info.Rest, "/cosmos/staking/v1beta1/delegations/"+addr+"?pagination.limit=1000"),
			q.addressOptions(addr, true))
	})
	q.validators = query.NewMap(func(status string) *query.ObservableQuery[ValidatorsResponse] {
		return query.NewJSON[ValidatorsResponse](shared,
			query.Get(info.Rest, "/cosmos/staking/v1beta1/validators?status="+status+"&pagination.limit=1000"),
			opts)
	})
	q.denomTraces = query.NewMap(func(hash string) *query.ObservableQuery[DenomTraceResponse] {
		return query.NewJSON[DenomTraceResponse](shared,
			query.Get(info.Rest, "/ibc/apps/transfer/v1/denom_traces/"+hash),
			q.persisted())
	})
	q.cw20Balances = query.NewMap(func(k cw20Key) *query.ObservableQuery[CW20BalanceResponse] {
		msg := map[string]any{"balance": map[string]string{"address": k.owner}}
		return query.NewJSON[CW20BalanceResponse](shared,
			query.Get(info.Rest, smartQueryPath(k.contract, msg)),
			q.addressOptions(k.owner, true))
	})
	q.cw20Infos = query.NewMap(func(contract string) *query.ObservableQuery[CW20TokenInfo] {
		return query.NewJSON[CW20TokenInfo](shared,
			query.Get(info.Rest, smartQueryPath(contract, map[string]any{"token_info": struct{}{}})),
			q.persisted())
	})
	return q
}

func (q *Queries) addressOptions(addr string, persist bool) query.Options {
	opts := q.opts
	opts.CanFetch = func() bool { return addr != "" }
	opts.Persist = persist
	return opts
}

func (q *Queries) persisted() query.Options {
	opts := q.opts
	opts.Persist = true
	return opts
}

func smartQueryPath(contract string, msg any) string {
	data, _ := json.Marshal(msg)
	return "/cosmwasm/wasm/v1/contract/" + contract + "/smart/" + url.PathEscape(base64.StdEncoding.EncodeToString(data))
}

// ChainInfo returns the chain the queries belong to.
func (q *Queries) ChainInfo() *chain.ChainInfo { return q.info }

// Account returns the auth account query of addr.
func (q *Queries) Account(addr string) *AccountQuery { return q.accounts.Get(addr) }

// Balances returns the bank balances query of addr.
func (q *Queries) Balances(addr string) *query.ObservableQuery[BalancesResponse] {
	return q.balances.Get(addr)
}

// Delegations returns the staking delegations query of addr.
func (q *Queries) Delegations(addr string) *query.ObservableQuery[DelegationsResponse] {
	return q.delegations.Get(addr)
}

// BondedValidators returns the bonded validator set query.
func (q *Queries) BondedValidators() *query.ObservableQuery[ValidatorsResponse] {
	return q.validators.Get("BOND_STATUS_BONDED")
}

// DenomTrace returns the IBC denom trace query of hash.
func (q *Queries) DenomTrace(hash string) *query.ObservableQuery[DenomTraceResponse] {
	return q.denomTraces.Get(hash)
}

// CW20Balance returns the balance query of owner in contract.
func (q *Queries) CW20Balance(contract, owner string) *query.ObservableQuery[CW20BalanceResponse] {
	return q.cw20Balances.Get(cw20Key{contract: contract, owner: owner})
}

// CW20TokenInfo returns the token_info query of contract.
func (q *Queries) CW20TokenInfo(contract string) *query.ObservableQuery[CW20TokenInfo] {
	return q.cw20Infos.Get(contract)
}

// AccountQuery wraps the auth account query. Accounts that never received
// funds answer 404; that is a ready account with sequence zero.
type AccountQuery struct {
	query *query.ObservableQuery[AccountInfo]
}

// Query returns the underlying query.
func (a *AccountQuery) Query() *query.ObservableQuery[AccountInfo] { return a.query }

// Info returns the account and whether it is known.
func (a *AccountQuery) Info() (AccountInfo, bool) {
	if resp := a.query.Response(); resp != nil {
		return resp.Data, true
	}
	if err := a.query.Error(); err != nil && err.Kind == query.KindHTTP && err.Status == http.StatusNotFound {
		return AccountInfo{}, true
	}
	return AccountInfo{}, false
}

// Store memoizes Queries per chain.
type Store struct {
	shared  *query.SharedContext
	chains  chain.Getter
	opts    query.Options
	byChain *query.Map[string, *Queries]
}

// NewStore creates a Store.
func NewStore(shared *query.SharedContext, chains chain.Getter, opts query.Options) *Store {
	s := &Store{shared: shared, chains: chains, opts: opts}
	s.byChain = query.NewMap(func(chainID string) *Queries {
		info, _ := chains.Get(chainID)
		return NewQueries(shared, info, opts)
	})
	return s
}

// Get returns the queries of chainID.
func (s *Store) Get(chainID string) (*Queries, error) {
	info, err := s.chains.Get(chainID)
	if err != nil {
		return nil, err
	}
	if info.Kind() != chain.KindCosmos || info.Rest == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotCosmos, chainID)
	}
	return s.byChain.Get(info.ChainID), nil
}

// Chains returns the chain getter.
func (s *Store) Chains() chain.Getter { return s.chains }
