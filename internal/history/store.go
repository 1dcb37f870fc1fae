// Package history is the diner's local record of placed orders. Entries are
// written once at checkout and afterwards only their status moves forward.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
	"digimenu/internal/state"
)

type Store struct {
	state  state.Store
	logger *zap.Logger

	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func NewStore(st state.Store, logger *zap.Logger) *Store {
	return &Store{state: st, logger: logger}
}

func (s *Store) Restore(ctx context.Context) error {
	var entries []domain.HistoryEntry
	if _, err := state.LoadJSON(ctx, s.state, state.KeyOrderHistory, &entries); err != nil {
		s.logger.Error("restoring order history", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Info("order history restored", zap.Int("entries", len(entries)))
	return nil
}

// Append records a new order. An order number can only be recorded once.
func (s *Store) Append(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.OrderNumber == "" {
		return apperrors.NewValidationError("order number is required",
			apperrors.ValidationDetail{Field: "orderNumber", Message: "must not be empty"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(entry.OrderNumber) >= 0 {
		return apperrors.NewConflictError("order " + entry.OrderNumber + " is already in history")
	}

	next := append(s.copyLocked(), entry)
	if err := state.SaveJSON(ctx, s.state, state.KeyOrderHistory, next); err != nil {
		s.logger.Error("persisting order history", zap.String("orderNumber", entry.OrderNumber), zap.Error(err))
		return apperrors.NewInternalError("persisting order history", err)
	}
	s.entries = next

	s.logger.Info("order added to history", zap.String("orderNumber", entry.OrderNumber), zap.String("status", string(entry.Status)))
	return nil
}

// UpdateStatus moves an entry forward to status. It reports whether anything
// changed; unknown orders and non-advancing statuses are left alone.
func (s *Store) UpdateStatus(ctx context.Context, orderNumber string, status domain.OrderStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(orderNumber)
	if i < 0 {
		return false, nil
	}
	current := s.entries[i].Status
	if !current.Advances(status) {
		if current != status {
			s.logger.Debug("ignoring status regression",
				zap.String("orderNumber", orderNumber),
				zap.String("current", string(current)),
				zap.String("received", string(status)))
		}
		return false, nil
	}

	next := s.copyLocked()
	next[i].Status = status
	next[i].UpdatedAt = now
	if err := state.SaveJSON(ctx, s.state, state.KeyOrderHistory, next); err != nil {
		s.logger.Error("persisting order history", zap.String("orderNumber", orderNumber), zap.Error(err))
		return false, apperrors.NewInternalError("persisting order history", err)
	}
	s.entries = next

	s.logger.Info("order status updated",
		zap.String("orderNumber", orderNumber),
		zap.String("from", string(current)),
		zap.String("status", string(status)))
	return true, nil
}

func (s *Store) Get(orderNumber string) (domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(orderNumber)
	if i < 0 {
		return domain.HistoryEntry{}, apperrors.NewNotFoundError("order " + orderNumber + " not found in history")
	}
	return cloneEntry(s.entries[i]), nil
}

// List returns all entries, most recent first.
func (s *Store) List() []domain.HistoryEntry {
	s.mu.Lock()
	out := s.copyLocked()
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Open returns entries that have not been delivered yet, oldest first.
func (s *Store) Open() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.HistoryEntry
	for _, e := range s.entries {
		if !e.Status.Terminal() {
			out = append(out, cloneEntry(e))
		}
	}
	return out
}

func (s *Store) indexLocked(orderNumber string) int {
	for i, e := range s.entries {
		if e.OrderNumber == orderNumber {
			return i
		}
	}
	return -1
}

func (s *Store) copyLocked() []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e domain.HistoryEntry) domain.HistoryEntry {
	lines := make([]domain.OrderLine, len(e.Lines))
	copy(lines, e.Lines)
	e.Lines = lines
	return e
}
