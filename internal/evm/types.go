package evm

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallMsg is the transaction object of eth_call and eth_estimateGas.
type CallMsg struct {
	From  string        `json:"from,omitempty"`
	To    string        `json:"to"`
	Value *hexutil.Big  `json:"value,omitempty"`
	Data  hexutil.Bytes `json:"data,omitempty"`
}

// TokenInfo is the ERC-20 metadata used to register a currency.
type TokenInfo struct {
	Contract string
	Symbol   string
	Decimals uint8
}

// Receipt is the part of eth_getTransactionReceipt the wallet reads.
type Receipt struct {
	TxHash      string         `json:"transactionHash"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	Status      hexutil.Uint64 `json:"status"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
}

// Succeeded reports whether the transaction executed without revert.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// FeeHistory is eth_feeHistory.
type FeeHistory struct {
	OldestBlock   *hexutil.Big     `json:"oldestBlock"`
	BaseFeePerGas []*hexutil.Big   `json:"baseFeePerGas"`
	Reward        [][]*hexutil.Big `json:"reward"`
}

// LatestBaseFee returns the base fee of the pending block.
func (f FeeHistory) LatestBaseFee() *big.Int {
	if len(f.BaseFeePerGas) == 0 || f.BaseFeePerGas[len(f.BaseFeePerGas)-1] == nil {
		return new(big.Int)
	}
	return f.BaseFeePerGas[len(f.BaseFeePerGas)-1].ToInt()
}

type batchItem struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b batchItem) bytes() ([]byte, error) {
	if b.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", b.Error.Code, b.Error.Message)
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(b.Result, &out); err != nil {
		return nil, err
	}
	return out, nil
}
