package query

import (
	"encoding/json"
	"fmt"
	"time"
)

// rpcRequest is a JSON-RPC 2.0 request. The id is fixed so that identical
// calls hash to the same key.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EncodeRPC builds the body of a JSON-RPC call.
func EncodeRPC(method string, params ...interface{}) ([]byte, error) {
	if params == nil {
		params = []interface{}{}
	}
	return json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
}

// RPCParser unwraps a JSON-RPC envelope and decodes result into a T. A null
// result decodes to the zero T.
func RPCParser[T any]() ParseFunc[T] {
	return func(raw *RawResponse) (T, error) {
		var v T
		var resp rpcResponse
		if err := json.Unmarshal(raw.Body, &resp); err != nil {
			return v, newError(KindParse, err)
		}
		if resp.Error != nil {
			return v, &Error{
				Kind:      KindRPC,
				Code:      resp.Error.Code,
				Message:   resp.Error.Message,
				Timestamp: time.Now(),
			}
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			return v, nil
		}
		if err := json.Unmarshal(resp.Result, &v); err != nil {
			return v, newError(KindParse, fmt.Errorf("result: %w", err))
		}
		return v, nil
	}
}

// NewEVM creates a query for one EVM JSON-RPC method call.
func NewEVM[T any](shared *SharedContext, rpcURL, method string, params []interface{}, opts Options) (*ObservableQuery[T], error) {
	body, err := EncodeRPC(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	return New(shared, Post(rpcURL, "", body), RPCParser[T](), opts), nil
}
