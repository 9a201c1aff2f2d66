package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Settings struct {
	StoreID         string    `json:"store_id"`
	Name            string    `json:"name"`
	MaintenanceMode bool      `json:"maintenance_mode"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *Store) GetSettings(ctx context.Context, storeID string) (Settings, error) {
	var out Settings
	row := s.db.QueryRowContext(ctx, `SELECT id, name, maintenance_mode, updated_at FROM stores WHERE id = $1`, storeID)
	if err := row.Scan(&out.StoreID, &out.Name, &out.MaintenanceMode, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, fmt.Errorf("store %s: %w", storeID, ErrNotFound)
		}
		return out, err
	}
	return out, nil
}

func (s *Store) SetMaintenanceMode(ctx context.Context, storeID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stores SET maintenance_mode = $2, updated_at = now() WHERE id = $1`, storeID, enabled)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store %s: %w", storeID, ErrNotFound)
	}
	return nil
}
