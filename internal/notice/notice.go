// Package notice carries short user-facing messages (toasts) from the core to
// whatever view is attached, and expires them after a fixed time.
package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "digimenu/internal/errors"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Notice struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Sink receives every notice as it is posted.
type Sink interface {
	Publish(n Notice)
}

// Notifier is what producers of notices depend on.
type Notifier interface {
	Post(kind Kind, orderNumber, message string) Notice
}

type Option func(*Center)

func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

func WithSinks(sinks ...Sink) Option {
	return func(c *Center) { c.sinks = append(c.sinks, sinks...) }
}

// Center keeps the notices that are still visible. A notice is visible until
// it is dismissed or older than the TTL.
type Center struct {
	ttl    time.Duration
	now    func() time.Time
	sinks  []Sink
	logger *zap.Logger

	mu      sync.Mutex
	notices []Notice
}

func NewCenter(ttl time.Duration, logger *zap.Logger, opts ...Option) *Center {
	c := &Center{
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) Post(kind Kind, orderNumber, message string) Notice {
	n := Notice{
		ID:          uuid.NewString(),
		Kind:        kind,
		Message:     message,
		OrderNumber: orderNumber,
		CreatedAt:   c.now(),
	}

	c.mu.Lock()
	c.notices = append(c.pruneLocked(n.CreatedAt), n)
	c.mu.Unlock()

	fields := []zap.Field{zap.String("noticeId", n.ID), zap.String("kind", string(kind))}
	if orderNumber != "" {
		fields = append(fields, zap.String("orderNumber", orderNumber))
	}
	switch kind {
	case KindError:
		c.logger.Error(message, fields...)
	case KindWarning:
		c.logger.Warn(message, fields...)
	default:
		c.logger.Info(message, fields...)
	}

	for _, s := range c.sinks {
		s.Publish(n)
	}
	return n
}

// Active returns the visible notices, oldest first.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notices = c.pruneLocked(c.now())
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

func (c *Center) Dismiss(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("notice not found")
}

func (c *Center) pruneLocked(now time.Time) []Notice {
	if c.ttl <= 0 {
		return c.notices
	}
	kept := c.notices[:0]
	for _, n := range c.notices {
		if now.Sub(n.CreatedAt) < c.ttl {
			kept = append(kept, n)
		}
	}
	return kept
}
