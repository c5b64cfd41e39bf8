package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eaedk/rule-engine/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventRuleCreated is emitted for every rule created in a batch
	EventRuleCreated EventType = "rule.created"
	// EventRuleUpdated is emitted when a rule is replaced in place
	EventRuleUpdated EventType = "rule.updated"
	// EventRuleDeleted is emitted when a rule is removed
	EventRuleDeleted EventType = "rule.deleted"
	// EventTransactionChecked is emitted when a transaction is checked against the rule set
	EventTransactionChecked EventType = "transaction.checked"
	// EventTransactionSaved is emitted when a transaction is persisted
	EventTransactionSaved EventType = "transaction.saved"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// RuleEventData carries the rule involved in a create/update/delete event.
type RuleEventData struct {
	Rule models.Rule
}

// TransactionCheckedData carries the outcome of a check.
type TransactionCheckedData struct {
	TransactionID string
	Approved      bool
	Failures      int
}

// TransactionSavedData carries the stored transaction.
type TransactionSavedData struct {
	Transaction models.Transaction
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus is a minimal in-process pub/sub bus. Handlers run asynchronously; a
// panicking handler is recovered and logged rather than taking the process
// down.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[EventType][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish dispatches an event to all subscribed handlers without blocking the
// caller.
func (b *Bus) Publish(ctx context.Context, t EventType, data interface{}) {
	b.mu.RLock()
	handlers := b.handlers[t]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						slog.String("event", string(t)),
						slog.Any("panic", r))
				}
			}()
			if err := h(ctx, event); err != nil {
				b.logger.Error("event handler failed",
					slog.String("event", string(t)),
					slog.String("error", err.Error()))
			}
		}(h)
	}
}

// Shutdown waits for in-flight handlers to finish.
func (b *Bus) Shutdown() {
	b.wg.Wait()
}
