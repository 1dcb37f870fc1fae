package serve

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

const auditViewLimit = 20

// AuditView is a page of deliveries, newest first. Day is empty when the
// view spans every day.
type AuditView struct {
	Day       string                       `json:"day,omitempty"`
	Entries   []domain.DeliveredAuditEntry `json:"entries"`
	Total     int                          `json:"total"`
	Truncated bool                         `json:"truncated"`
}

// AuditLog is the append-only list of deliveries confirmed from this device.
type AuditLog struct {
	state  state.Store
	loc    *time.Location
	logger *zap.Logger

	mu      sync.Mutex
	entries []domain.DeliveredAuditEntry
}

func NewAuditLog(st state.Store, loc *time.Location, logger *zap.Logger) *AuditLog {
	if loc == nil {
		loc = time.UTC
	}
	return &AuditLog{state: st, loc: loc, logger: logger}
}

func (a *AuditLog) Restore(ctx context.Context) error {
	var entries []domain.DeliveredAuditEntry
	if _, err := state.LoadJSON(ctx, a.state, state.KeyDeliveredAudit, &entries); err != nil {
		a.logger.Error("restoring delivery audit log", zap.Error(err))
		return err
	}

	a.mu.Lock()
	a.entries = entries
	a.mu.Unlock()
	return nil
}

func (a *AuditLog) Append(ctx context.Context, entry domain.DeliveredAuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := make([]domain.DeliveredAuditEntry, len(a.entries), len(a.entries)+1)
	copy(next, a.entries)
	next = append(next, entry)
	if err := state.SaveJSON(ctx, a.state, state.KeyDeliveredAudit, next); err != nil {
		a.logger.Error("persisting delivery audit log", zap.String("orderNumber", entry.OrderNumber), zap.Error(err))
		return apperrors.NewInternalError("persisting delivery audit log", err)
	}
	a.entries = next
	return nil
}

// View returns the deliveries made on the calendar day of day, in the log's
// location, capped to the most recent 20.
func (a *AuditLog) View(day time.Time) AuditView {
	local := day.In(a.loc)
	y, m, d := local.Date()

	a.mu.Lock()
	var matched []domain.DeliveredAuditEntry
	for _, e := range a.entries {
		ey, em, ed := e.DeliveredAt.In(a.loc).Date()
		if ey == y && em == m && ed == d {
			matched = append(matched, e)
		}
	}
	a.mu.Unlock()

	view := newestFirst(matched)
	view.Day = local.Format("2006-01-02")
	return view
}

// Recent returns the most recent 20 deliveries across all days.
func (a *AuditLog) Recent() AuditView {
	a.mu.Lock()
	all := make([]domain.DeliveredAuditEntry, len(a.entries))
	copy(all, a.entries)
	a.mu.Unlock()

	return newestFirst(all)
}

func newestFirst(entries []domain.DeliveredAuditEntry) AuditView {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DeliveredAt.After(entries[j].DeliveredAt)
	})

	view := AuditView{Total: len(entries), Entries: entries}
	if len(entries) > auditViewLimit {
		view.Entries = entries[:auditViewLimit]
		view.Truncated = true
	}
	if view.Entries == nil {
		view.Entries = []domain.DeliveredAuditEntry{}
	}
	return view
}

func (a *AuditLog) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
