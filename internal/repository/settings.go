package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// SettingProductionDays is the key of the global production lead time, read
// fresh on every quote request.
const SettingProductionDays = "production_days"

// SettingsRepository is a small key-value store for shop-wide settings.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO settings (key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// ProductionDays returns the global production-days setting; a missing or
// malformed value counts as zero.
func (r *SettingsRepository) ProductionDays(ctx context.Context) (int, error) {
	value, err := r.Get(ctx, SettingProductionDays)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(value)
	if err != nil || days < 0 {
		return 0, nil
	}
	return days, nil
}

func (r *SettingsRepository) SetProductionDays(ctx context.Context, days int) error {
	if days < 0 {
		return fmt.Errorf("production days must be non-negative, got %d", days)
	}
	return r.Set(ctx, SettingProductionDays, strconv.Itoa(days))
}
