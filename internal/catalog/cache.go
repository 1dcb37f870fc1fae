// Package catalog holds the read-only menu snapshot used to resolve item ids
// to names and prices.
package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
)

type MenuSource interface {
	ListMenuItems(ctx context.Context) ([]domain.MenuItem, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// Cache is filled once by Load and never refreshed afterwards; a new snapshot
// needs a new Cache.
type Cache struct {
	source MenuSource
	logger *zap.Logger

	mu         sync.RWMutex
	loaded     bool
	items      []domain.MenuItem
	byID       map[int]domain.MenuItem
	categories []domain.Category
}

func NewCache(source MenuSource, logger *zap.Logger) *Cache {
	return &Cache{
		source: source,
		logger: logger,
		byID:   make(map[int]domain.MenuItem),
	}
}

// Load fetches items and categories in parallel. Calls after the first
// successful one are no-ops.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	var (
		items []domain.MenuItem
		cats  []domain.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = c.source.ListMenuItems(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = c.source.ListCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Error("loading menu catalog", zap.Error(err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	c.items = items
	c.categories = cats
	for _, it := range items {
		c.byID[it.ID] = it
	}
	c.loaded = true
	c.logger.Info("menu catalog loaded", zap.Int("items", len(items)), zap.Int("categories", len(cats)))
	return nil
}

func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Cache) Item(id int) (domain.MenuItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.byID[id]
	if !ok {
		return domain.MenuItem{}, apperrors.NewNotFoundError("menu item not found")
	}
	return it, nil
}

// Items returns the menu in backend order, optionally restricted to one
// category (categoryID 0 means all).
func (c *Cache) Items(categoryID int) []domain.MenuItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.MenuItem, 0, len(c.items))
	for _, it := range c.items {
		if categoryID == 0 || it.CategoryID == categoryID {
			out = append(out, it)
		}
	}
	return out
}

func (c *Cache) Categories() []domain.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// DefaultCategory is the first category, which the menu opens on.
func (c *Cache) DefaultCategory() (domain.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.categories) == 0 {
		return domain.Category{}, false
	}
	return c.categories[0], true
}

// PriceLines fills in names and current prices for lines that came back from
// the backend without them. Unknown items keep a zero price.
func (c *Cache) PriceLines(lines []domain.OrderLine) []domain.OrderLine {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.OrderLine, len(lines))
	for i, l := range lines {
		out[i] = l
		if it, ok := c.byID[l.ItemID]; ok {
			if out[i].Name == "" {
				out[i].Name = it.Name
			}
			if out[i].UnitPrice.IsZero() {
				out[i].UnitPrice = it.Price
			}
		}
	}
	return out
}
