// Package router dispatches messages to handlers registered per route, the
// way a background service receives requests from wallet front-ends.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// ErrNoHandler is returned when no handler serves a message's route.
var ErrNoHandler = errors.New("no handler for route")

// Message is a routable request.
type Message interface {
	Route() string
	Type() string
	ValidateBasic() error
}

// Handler serves one route.
type Handler func(ctx context.Context, id string, msg Message) (interface{}, error)

// Error is a module-scoped failure returned by handlers or validation.
type Error struct {
	Module  string `json:"module"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("module: %s, code: %d, message: %s", e.Module, e.Code, e.Message)
}

// NewError builds an Error.
func NewError(module string, code int, message string) *Error {
	return &Error{Module: module, Code: code, Message: message}
}

// Validation failures use this code.
const CodeInvalidMessage = 1

// Result is a handled message.
type Result struct {
	ID    string      `json:"id"`
	Value interface{} `json:"value,omitempty"`
}

// Router holds the handler table.
type Router struct {
	log *logging.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		log:      logging.GetDefault().Component("router"),
		handlers: make(map[string]Handler),
	}
}

// AddHandler registers h for route, replacing any previous handler.
func (r *Router) AddHandler(route string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[route] = h
}

// Routes returns the number of registered routes.
func (r *Router) Routes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Send validates msg and hands it to its route's handler.
func (r *Router) Send(ctx context.Context, msg Message) (*Result, error) {
	if err := msg.ValidateBasic(); err != nil {
		var rerr *Error
		if errors.As(err, &rerr) {
			return nil, rerr
		}
		return nil, NewError(msg.Route(), CodeInvalidMessage, err.Error())
	}

	r.mu.RLock()
	h, ok := r.handlers[msg.Route()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, msg.Route())
	}

	id := uuid.NewString()
	r.log.Debug("dispatching message", "id", id, "route", msg.Route(), "type", msg.Type())
	value, err := h(ctx, id, msg)
	if err != nil {
		r.log.Debug("message failed", "id", id, "route", msg.Route(), "err", err)
		return nil, err
	}
	return &Result{ID: id, Value: value}, nil
}
