package evm

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 abi: %v", err))
	}
	return parsed
}

// PackBalanceOf encodes balanceOf(owner).
func PackBalanceOf(owner string) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", common.HexToAddress(owner))
}

// PackTransfer encodes transfer(to, amount).
func PackTransfer(to string, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", common.HexToAddress(to), amount)
}

func packNoArgs(method string) []byte {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		panic(err)
	}
	return data
}

// UnpackSymbol decodes a symbol() or name() result. Some older tokens
// return bytes32 instead of string.
func UnpackSymbol(data []byte) (string, error) {
	values, err := erc20ABI.Unpack("symbol", data)
	if err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}
	if len(data) == 32 {
		return string(bytes.TrimRight(data, "\x00")), nil
	}
	if err == nil {
		err = fmt.Errorf("unexpected symbol output")
	}
	return "", err
}

// UnpackDecimals decodes a decimals() result.
func UnpackDecimals(data []byte) (uint8, error) {
	values, err := erc20ABI.Unpack("decimals", data)
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	return d, nil
}
