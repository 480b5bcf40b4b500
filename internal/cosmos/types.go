package cosmos

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

// Coin is an sdk.Coin as rendered by the REST gateway.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// BigAmount parses Amount. Unparseable amounts are zero.
func (c Coin) BigAmount() *big.Int {
	n, ok := new(big.Int).SetString(c.Amount, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// BalancesResponse is /cosmos/bank/v1beta1/balances/{address}.
type BalancesResponse struct {
	Balances []Coin `json:"balances"`
}

// AmountOf returns the amount of denom, or nil when absent.
func (r BalancesResponse) AmountOf(denom string) *big.Int {
	for _, c := range r.Balances {
		if c.Denom == denom {
			return c.BigAmount()
		}
	}
	return nil
}

// AccountInfo is the part of an auth account the wallet needs.
type AccountInfo struct {
	Address       string
	AccountNumber uint64
	Sequence      uint64
}

type baseAccount struct {
	Address       string `json:"address"`
	AccountNumber string `json:"account_number"`
	Sequence      string `json:"sequence"`
}

// parseAccount handles base, module, vesting and ethermint account shapes,
// which nest the base account at different depths.
func parseAccount(body []byte) (AccountInfo, error) {
	var envelope struct {
		Account json.RawMessage `json:"account"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return AccountInfo{}, err
	}
	raw := envelope.Account
	for depth := 0; depth < 4; depth++ {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return AccountInfo{}, err
		}
		if _, ok := fields["account_number"]; ok {
			var acc baseAccount
			if err := json.Unmarshal(raw, &acc); err != nil {
				return AccountInfo{}, err
			}
			return acc.info()
		}
		next, ok := fields["base_account"]
		if !ok {
			next, ok = fields["base_vesting_account"]
		}
		if !ok {
			break
		}
		raw = next
	}
	return AccountInfo{}, fmt.Errorf("unrecognised account shape")
}

func (a baseAccount) info() (AccountInfo, error) {
	info := AccountInfo{Address: a.Address}
	var err error
	if a.AccountNumber != "" {
		if info.AccountNumber, err = strconv.ParseUint(a.AccountNumber, 10, 64); err != nil {
			return AccountInfo{}, fmt.Errorf("account_number: %w", err)
		}
	}
	if a.Sequence != "" {
		if info.Sequence, err = strconv.ParseUint(a.Sequence, 10, 64); err != nil {
			return AccountInfo{}, fmt.Errorf("sequence: %w", err)
		}
	}
	return info, nil
}

// DelegationsResponse is /cosmos/staking/v1beta1/delegations/{address}.
type DelegationsResponse struct {
	DelegationResponses []struct {
		Delegation struct {
			DelegatorAddress string `json:"delegator_address"`
			ValidatorAddress string `json:"validator_address"`
			Shares           string `json:"shares"`
		} `json:"delegation"`
		Balance Coin `json:"balance"`
	} `json:"delegation_responses"`
}

// Total sums the delegated balance.
func (r DelegationsResponse) Total() *big.Int {
	total := new(big.Int)
	for _, d := range r.DelegationResponses {
		total.Add(total, d.Balance.BigAmount())
	}
	return total
}

// Validator is one entry of the validator set.
type Validator struct {
	OperatorAddress string `json:"operator_address"`
	Jailed          bool   `json:"jailed"`
	Status          string `json:"status"`
	Tokens          string `json:"tokens"`
	Description     struct {
		Moniker string `json:"moniker"`
		Website string `json:"website"`
	} `json:"description"`
	Commission struct {
		CommissionRates struct {
			Rate string `json:"rate"`
		} `json:"commission_rates"`
	} `json:"commission"`
}

// ValidatorsResponse is /cosmos/staking/v1beta1/validators.
type ValidatorsResponse struct {
	Validators []Validator `json:"validators"`
}

// DenomTrace is the origin of an IBC voucher.
type DenomTrace struct {
	Path      string `json:"path"`
	BaseDenom string `json:"base_denom"`
}

// DenomTraceResponse is /ibc/apps/transfer/v1/denom_traces/{hash}.
type DenomTraceResponse struct {
	DenomTrace DenomTrace `json:"denom_trace"`
}

// CW20BalanceResponse is the smart-query answer to {"balance":{...}}.
type CW20BalanceResponse struct {
	Data struct {
		Balance string `json:"balance"`
	} `json:"data"`
}

// CW20TokenInfo is the smart-query answer to {"token_info":{}}.
type CW20TokenInfo struct {
	Data struct {
		Name        string `json:"name"`
		Symbol      string `json:"symbol"`
		Decimals    uint8  `json:"decimals"`
		TotalSupply string `json:"total_supply"`
	} `json:"data"`
}

// TxResponse is the tx_response object returned by broadcast and lookup.
type TxResponse struct {
	TxHash string `json:"txhash"`
	Height string `json:"height"`
	Code   uint32 `json:"code"`
	RawLog string `json:"raw_log"`
}

type txEnvelope struct {
	TxResponse TxResponse `json:"tx_response"`
}
