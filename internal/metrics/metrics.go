// Package metrics keeps an in-memory snapshot of the admin dashboard
// figures, refreshed in the background so the dashboard endpoint never hits
// Postgres on the hot path.
package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

type Source interface {
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
	RevenueSince(ctx context.Context, since time.Time) (string, int64, error)
}

type Snapshot struct {
	GeneratedAt    time.Time                    `json:"generated_at"`
	OrdersByStatus map[models.OrderStatus]int64 `json:"orders_by_status"`
	OrdersToday    int64                        `json:"orders_today"`
	RevenueToday   string                       `json:"revenue_today"`
}

type Cache struct {
	mu     sync.RWMutex
	snap   Snapshot
	source Source
}

func NewCache(source Source) *Cache {
	return &Cache{source: source, snap: Snapshot{OrdersByStatus: map[models.OrderStatus]int64{}}}
}

func (c *Cache) Refresh(ctx context.Context) error {
	counts, err := c.source.CountByStatus(ctx)
	if err != nil {
		return err
	}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	revenue, ordersToday, err := c.source.RevenueSince(ctx, midnight)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snap = Snapshot{
		GeneratedAt:    time.Now().UTC(),
		OrdersByStatus: counts,
		OrdersToday:    ordersToday,
		RevenueToday:   revenue,
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Cache) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("metrics refresh failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
