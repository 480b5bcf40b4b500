package currency

import (
	"strings"

	"github.com/klingon-exchange/walletstore/internal/chain"
	"github.com/klingon-exchange/walletstore/internal/cosmos"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// CW20Registrar resolves "cw20:<contract>" from the token_info smart query.
// Token metadata is immutable, so a persisted response is used as is.
type CW20Registrar struct {
	cosmos *cosmos.Store
	bg     *background
}

// NewCW20Registrar creates the registrar.
func NewCW20Registrar(store *cosmos.Store, notifier Notifier) *CW20Registrar {
	return &CW20Registrar{cosmos: store, bg: newBackground(notifier, logging.GetDefault().Component("currency"))}
}

// Resolve implements chain.Registrar.
func (r *CW20Registrar) Resolve(chainID, denom string) *chain.RegistrarResult {
	kind, contract := chain.SplitDenom(denom)
	if kind != cosmos.CW20Prefix || contract == "" {
		return nil
	}
	q, err := r.cosmos.Get(chainID)
	if err != nil || !q.ChainInfo().HasFeature(chain.FeatureCosmwasm) {
		return nil
	}

	infoQuery := q.CW20TokenInfo(contract)
	infoQuery.Restore()
	if resp := infoQuery.Response(); resp != nil {
		return &chain.RegistrarResult{Value: &chain.Currency{
			CoinDenom:        resp.Data.Data.Symbol,
			CoinMinimalDenom: denom,
			CoinDecimals:     resp.Data.Data.Decimals,
		}, Done: true}
	}
	key := "cw20/" + chainID + "/" + contract
	return r.bg.settle(key, infoQuery.Error(), infoQuery.IsFetching(), infoQuery.Fetch)
}

// IBCRegistrar resolves "ibc/<HASH>" vouchers through their denom trace.
// The base denom's currency is looked up among the known chains and shown
// as "SYMBOL (channel-N)".
type IBCRegistrar struct {
	cosmos *cosmos.Store
	chains *chain.Store
	bg     *background
}

// NewIBCRegistrar creates the registrar. chains doubles as the notifier.
func NewIBCRegistrar(store *cosmos.Store, chains *chain.Store) *IBCRegistrar {
	return &IBCRegistrar{cosmos: store, chains: chains, bg: newBackground(chains, logging.GetDefault().Component("currency"))}
}

// Resolve implements chain.Registrar.
func (r *IBCRegistrar) Resolve(chainID, denom string) *chain.RegistrarResult {
	hash, ok := strings.CutPrefix(denom, "ibc/")
	if !ok || hash == "" {
		return nil
	}
	q, err := r.cosmos.Get(chainID)
	if err != nil {
		return nil
	}

	traceQuery := q.DenomTrace(hash)
	traceQuery.Restore()
	if resp := traceQuery.Response(); resp != nil {
		trace := resp.Data.DenomTrace
		cur := chain.Currency{
			CoinDenom:        trace.BaseDenom,
			CoinMinimalDenom: denom,
		}
		if origin, ok := r.findOrigin(trace.BaseDenom); ok {
			cur.CoinDenom = origin.CoinDenom
			cur.CoinDecimals = origin.CoinDecimals
			cur.CoinGeckoID = origin.CoinGeckoID
			cur.CoinImageURL = origin.CoinImageURL
		}
		if channel := FirstChannel(trace.Path); channel != "" {
			cur.CoinDenom += " (" + channel + ")"
		}
		return &chain.RegistrarResult{Value: &cur, Done: true}
	}
	key := "ibc/" + chainID + "/" + hash
	return r.bg.settle(key, traceQuery.Error(), traceQuery.IsFetching(), traceQuery.Fetch)
}

func (r *IBCRegistrar) findOrigin(baseDenom string) (chain.Currency, bool) {
	for _, info := range r.chains.List() {
		if cur, ok := info.FindStaticCurrency(baseDenom); ok {
			return cur, true
		}
	}
	return chain.Currency{}, false
}

// FirstChannel returns the channel of the first hop of an IBC trace path
// such as "transfer/channel-0/transfer/channel-141".
func FirstChannel(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i += 2 {
		if strings.HasPrefix(parts[i], "channel-") {
			return parts[i]
		}
	}
	return ""
}
