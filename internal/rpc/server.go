// Package rpc exposes the wallet store over JSON-RPC 2.0 with a WebSocket
// event stream.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klingon-exchange/walletstore/internal/account"
	"github.com/klingon-exchange/walletstore/internal/keyring"
	"github.com/klingon-exchange/walletstore/internal/notify"
	"github.com/klingon-exchange/walletstore/internal/queries"
	"github.com/klingon-exchange/walletstore/internal/router"
	"github.com/klingon-exchange/walletstore/internal/txconfig"
	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// Keyring is the keyring surface the server manages.
type Keyring interface {
	keyring.Keyring
	Create(ctx context.Context, mnemonic, password string) error
	Unlock(ctx context.Context, password string) error
	Lock()
}

// Server is a JSON-RPC 2.0 server.
type Server struct {
	queries  *queries.Store
	keyring  Keyring
	accounts *account.Store
	gatherer prometheus.Gatherer
	log      *logging.Logger
	wsHub    *WSHub

	server   *http.Server
	listener net.Listener
	unsub    func()

	watchMu sync.Mutex
	watched map[string]func()

	handlers map[string]Handler
	metrics  *metrics
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

const maxRequestBytes = 1 << 20

// Application error codes.
const (
	// ValidationFailed carries a transaction draft field error.
	ValidationFailed = -32001
	// MessageRejected carries a router error from the signing route.
	MessageRejected = -32002
)

// Options configures a Server.
type Options struct {
	// Registerer receives the request metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Gatherer is served on /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewServer creates a JSON-RPC server over the query, keyring and account
// stores.
func NewServer(qs *queries.Store, kr Keyring, accounts *account.Store, opts Options) *Server {
	s := &Server{
		queries:  qs,
		keyring:  kr,
		accounts: accounts,
		gatherer: opts.Gatherer,
		metrics:  newMetrics(opts.Registerer),
		log:      logging.GetDefault().Component("rpc"),
		wsHub:    NewWSHub(),
	}
	s.handlers = map[string]Handler{
		"chains_list":      s.chainsList,
		"chains_get":       s.chainsGet,
		"currencies_find":  s.currenciesFind,
		"keyring_status":   s.keyringStatus,
		"keyring_generate": s.keyringGenerate,
		"keyring_create":   s.keyringCreate,
		"keyring_unlock":   s.keyringUnlock,
		"keyring_lock":     s.keyringLock,
		"account_get":      s.accountGet,
		"account_list":     s.accountList,
		"balances_get":     s.balancesGet,
		"tx_validate":      s.txValidate,
		"tx_send":          s.txSend,
	}
	return s
}

// Handler returns the HTTP handler serving RPC, WebSocket and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return corsMiddleware(mux)
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	go s.wsHub.Run()
	s.unsub = s.keyring.Subscribe(func() {
		s.wsHub.Broadcast(EventKeyringStatus, &KeyringStatusResult{Status: s.keyring.Status(), Version: Version})
	})

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("RPC server stopped", "error", err)
		}
	}()

	s.log.Info("RPC server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop releases subscriptions and shuts the HTTP server down.
func (s *Server) Stop() error {
	if s.unsub != nil {
		s.unsub()
	}
	s.watchMu.Lock()
	for _, unsub := range s.watched {
		unsub()
	}
	s.watched = nil
	s.watchMu.Unlock()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Notifier broadcasts notifications to WebSocket clients.
func (s *Server) Notifier() notify.Notifier {
	return notify.Func(func(n notify.Notification) {
		s.wsHub.BroadcastChain(EventNotification, n.ChainID, n)
	})
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub { return s.wsHub }

// handleRPC serves a single request or a batch. Batch responses keep the
// request order.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, errorResponse(nil, ParseError, "Parse error", nil))
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			writeJSON(w, errorResponse(nil, ParseError, "Parse error", nil))
			return
		}
		if len(batch) == 0 {
			writeJSON(w, errorResponse(nil, InvalidRequest, "Invalid Request", "empty batch"))
			return
		}
		out := make([]*Response, len(batch))
		for i, raw := range batch {
			out[i] = s.dispatch(r.Context(), raw)
		}
		writeJSON(w, out)
		return
	}
	writeJSON(w, s.dispatch(r.Context(), body))
}

func (s *Server) dispatch(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, ParseError, "Parse error", nil)
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, InvalidRequest, "Invalid Request", nil)
	}
	handler, ok := s.handlers[req.Method]
	if !ok {
		return errorResponse(req.ID, MethodNotFound, "Method not found", req.Method)
	}

	start := time.Now()
	result, err := handler(ctx, req.Params)
	s.metrics.observe(req.Method, err, time.Since(start))
	if err != nil {
		code, data := errorCode(err)
		if code == InternalError {
			s.log.Warn("request failed", "method", req.Method, "error", err)
		}
		return errorResponse(req.ID, code, err.Error(), data)
	}
	return &Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

// paramsError marks a malformed or incomplete params object.
type paramsError struct{ err error }

func (e *paramsError) Error() string { return "invalid params: " + e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{err: fmt.Errorf(format, args...)}
}

func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return invalidParams("params are required")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &paramsError{err: err}
	}
	return nil
}

func errorCode(err error) (int, interface{}) {
	var pe *paramsError
	if errors.As(err, &pe) {
		return InvalidParams, nil
	}
	if txconfig.IsValidationError(err) {
		return ValidationFailed, fmt.Sprintf("%T", err)
	}
	var re *router.Error
	if errors.As(err, &re) {
		return MessageRejected, re
	}
	return InternalError, nil
}

func errorResponse(id interface{}, code int, message string, data interface{}) *Response {
	return &Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message, Data: data}, ID: id}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
