package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"spot-matching/internal/logger"
	"spot-matching/internal/matching"
)

// Publisher delivers a command's events, in sequence order.
type Publisher interface {
	Publish(ctx context.Context, events []matching.Event) error
}

// Handler consumes one event. Handlers run on the publishing lane's goroutine and must not block.
type Handler func(ev matching.Event) error

// Bus fans events out to in-process handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers []namedHandler
	logger   *zap.Logger
}

type namedHandler struct {
	name string
	fn   Handler
}

// NewBus creates an empty bus.
func NewBus(log *zap.Logger) *Bus {
	return &Bus{logger: logger.OrNop(log)}
}

// Subscribe registers h under name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, fn: h})
}

// Publish hands every event to every handler. A failing handler does not stop the others;
// the errors are joined.
func (b *Bus) Publish(ctx context.Context, evs []matching.Event) error {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	var errs []error
	for _, ev := range evs {
		for _, h := range handlers {
			if err := h.fn(ev); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("handler", h.name),
					zap.String("event_id", ev.EventID()),
					zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// MultiPublisher publishes to several publishers in order.
type MultiPublisher []Publisher

// Publish calls every publisher even when an earlier one fails.
func (m MultiPublisher) Publish(ctx context.Context, evs []matching.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
