// Package notify delivers fire-and-forget user notifications.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/klingon-exchange/walletstore/pkg/logging"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one message for the user.
type Notification struct {
	ID      string    `json:"id"`
	ChainID string    `json:"chain_id,omitempty"`
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives notifications. Create must not block.
type Notifier interface {
	Create(n Notification)
}

// Func adapts a function to Notifier.
type Func func(n Notification)

func (f Func) Create(n Notification) { f(n) }

// New fills in the id and time of a notification.
func New(level Level, title, message string) Notification {
	return Notification{ID: uuid.NewString(), Level: level, Title: title, Message: message, Time: time.Now()}
}

// ForChain returns n tagged with chainID.
func (n Notification) ForChain(chainID string) Notification {
	n.ChainID = chainID
	return n
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	if log == nil {
		log = logging.GetDefault()
	}
	return &LogNotifier{log: log.Component("notify")}
}

func (l *LogNotifier) Create(n Notification) {
	switch n.Level {
	case LevelError:
		l.log.Error(n.Title, "chain", n.ChainID, "message", n.Message, "id", n.ID)
	default:
		l.log.Info(n.Title, "chain", n.ChainID, "message", n.Message, "id", n.ID)
	}
}

// Multi fans a notification out to several notifiers.
type Multi struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// Add appends n.
func (m *Multi) Add(n Notifier) {
	m.mu.Lock()
	m.notifiers = append(m.notifiers, n)
	m.mu.Unlock()
}

func (m *Multi) Create(n Notification) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, notifier := range m.notifiers {
		notifier.Create(n)
	}
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*Multi)(nil)
	_ Notifier = Func(nil)
)
