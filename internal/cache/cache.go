// Package cache caches aggregator rate lookups in Redis so repeated quotes
// for the same destination and parcel skip the external call. Shipping rules
// and settings are deliberately NOT cached: the rule engine reads them fresh
// on every request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewQuoteCache(addr string, ttl time.Duration) (*QuoteCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &QuoteCache{client: client, ttl: ttl}, nil
}

func (c *QuoteCache) Close() error {
	return c.client.Close()
}

// Key ignores the declared value: rates depend on destination and weight,
// while the declared value only matters to the rule engine, which runs after
// the cache.
func Key(req gateway.QuoteRequest) string {
	return fmt.Sprintf("quote:%s:%s", req.DestinationZip, req.WeightKg.String())
}

func (c *QuoteCache) Get(ctx context.Context, req gateway.QuoteRequest) ([]models.ShippingOption, error) {
	data, err := c.client.Get(ctx, Key(req)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("quote cache get: %w", err)
	}

	var options []models.ShippingOption
	if err := json.Unmarshal(data, &options); err != nil {
		return nil, fmt.Errorf("quote cache decode: %w", err)
	}
	return options, nil
}

func (c *QuoteCache) Set(ctx context.Context, req gateway.QuoteRequest, options []models.ShippingOption) error {
	data, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("quote cache encode: %w", err)
	}
	if err := c.client.Set(ctx, Key(req), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("quote cache set: %w", err)
	}
	return nil
}
