package query

import (
	"encoding/json"
	"fmt"
)

// JSONParser decodes the body as JSON into a T.
func JSONParser[T any]() ParseFunc[T] {
	return func(raw *RawResponse) (T, error) {
		var v T
		if err := json.Unmarshal(raw.Body, &v); err != nil {
			return v, newError(KindParse, err)
		}
		return v, nil
	}
}

// NewJSON creates a query whose response body is JSON.
func NewJSON[T any](shared *SharedContext, req Request, opts Options) *ObservableQuery[T] {
	return New(shared, req, JSONParser[T](), opts)
}

// NewJSONPost creates a POST query with a JSON-encoded body.
func NewJSONPost[T any](shared *SharedContext, baseURL, path string, body any, opts Options) (*ObservableQuery[T], error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return New(shared, Post(baseURL, path, data), JSONParser[T](), opts), nil
}
