// Package cart keeps the diner's in-progress selection. Every change is
// written through to the state store before it is acknowledged.
package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
	"digimenu/internal/state"
)

type Store struct {
	state  state.Store
	logger *zap.Logger

	mu     sync.Mutex
	lines  []domain.CartLine
	subs   map[int]func([]domain.CartLine)
	nextID int
}

func NewStore(st state.Store, logger *zap.Logger) *Store {
	return &Store{
		state:  st,
		logger: logger,
		subs:   make(map[int]func([]domain.CartLine)),
	}
}

// Restore reloads the persisted cart. A missing document means an empty cart.
func (s *Store) Restore(ctx context.Context) error {
	var lines []domain.CartLine
	if _, err := state.LoadJSON(ctx, s.state, state.KeyCart, &lines); err != nil {
		s.logger.Error("restoring cart", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.lines = lines
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.logger.Info("cart restored", zap.Int("lines", len(lines)))
	s.notify(snapshot)
	return nil
}

// Add puts qty of item in the cart, merging into an existing line for the
// same item. The unit price of an existing line is kept.
func (s *Store) Add(ctx context.Context, item domain.MenuItem, qty int) error {
	if qty < 1 {
		return apperrors.NewValidationError("quantity must be at least 1",
			apperrors.ValidationDetail{Field: "quantity", Message: "must be a positive integer"})
	}

	return s.mutate(ctx, func(lines []domain.CartLine) ([]domain.CartLine, error) {
		for i := range lines {
			if lines[i].ItemID == item.ID {
				lines[i].Quantity += qty
				return lines, nil
			}
		}
		return append(lines, domain.CartLine{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  qty,
		}), nil
	})
}

func (s *Store) SetQuantity(ctx context.Context, itemID, qty int) error {
	if qty <= 0 {
		return apperrors.NewValidationError("quantity must be at least 1",
			apperrors.ValidationDetail{Field: "quantity", Message: "must be a positive integer"})
	}

	return s.mutate(ctx, func(lines []domain.CartLine) ([]domain.CartLine, error) {
		for i := range lines {
			if lines[i].ItemID == itemID {
				lines[i].Quantity = qty
				return lines, nil
			}
		}
		return nil, apperrors.NewNotFoundError("item is not in the cart")
	})
}

// Remove drops the line for itemID. Removing an absent item is a no-op.
func (s *Store) Remove(ctx context.Context, itemID int) error {
	return s.mutate(ctx, func(lines []domain.CartLine) ([]domain.CartLine, error) {
		out := lines[:0]
		for _, l := range lines {
			if l.ItemID != itemID {
				out = append(out, l)
			}
		}
		return out, nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func([]domain.CartLine) ([]domain.CartLine, error) {
		return nil, nil
	})
}

// Replace swaps the whole cart for lines, used when reordering.
func (s *Store) Replace(ctx context.Context, lines []domain.CartLine) error {
	for _, l := range lines {
		if l.Quantity < 1 {
			return apperrors.NewValidationError("quantity must be at least 1",
				apperrors.ValidationDetail{Field: "quantity", Message: "must be a positive integer"})
		}
	}
	return s.mutate(ctx, func([]domain.CartLine) ([]domain.CartLine, error) {
		out := make([]domain.CartLine, len(lines))
		copy(out, lines)
		return out, nil
	})
}

func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Count is the number of units across all lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

// Subscribe registers fn to receive the cart after every successful change.
// The returned func unregisters it.
func (s *Store) Subscribe(fn func([]domain.CartLine)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// mutate applies change to a copy of the lines, persists the result and only
// then makes it current. A failed save leaves the cart as it was.
func (s *Store) mutate(ctx context.Context, change func([]domain.CartLine) ([]domain.CartLine, error)) error {
	s.mu.Lock()
	next, err := change(s.copyLocked())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(next) == 0 {
		next = nil
	}

	if err := state.SaveJSON(ctx, s.state, state.KeyCart, next); err != nil {
		s.mu.Unlock()
		s.logger.Error("persisting cart", zap.Error(err))
		return apperrors.NewInternalError("persisting cart", err)
	}
	s.lines = next
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

func (s *Store) copyLocked() []domain.CartLine {
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) notify(lines []domain.CartLine) {
	s.mu.Lock()
	subs := make([]func([]domain.CartLine), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(lines)
	}
}
