package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"resellerhub/internal/subscription"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateStore(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("missing store name")
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO stores (id, name) VALUES ($1, $2)`, id, name); err != nil {
		return "", err
	}
	return id, nil
}

// GetSubscription returns the persisted snapshot for a store in wire form.
func (s *Store) GetSubscription(ctx context.Context, storeID string) (subscription.Raw, error) {
	var (
		raw   subscription.Raw
		start sql.NullTime
		end   time.Time
	)
	row := s.db.QueryRowContext(ctx, `SELECT status, plan, start_date, end_date FROM subscriptions WHERE store_id = $1`, storeID)
	if err := row.Scan(&raw.Status, &raw.Plan, &start, &end); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return raw, fmt.Errorf("subscription for store %s: %w", storeID, ErrNotFound)
		}
		return raw, err
	}
	if start.Valid {
		raw.StartDate = start.Time.UTC().Format(time.RFC3339)
	}
	raw.EndDate = end.UTC().Format(time.RFC3339)
	return raw, nil
}

func (s *Store) UpsertSubscription(ctx context.Context, storeID string, rec subscription.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	var start sql.NullTime
	if !rec.StartDate.IsZero() {
		start = sql.NullTime{Time: rec.StartDate.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (store_id, status, plan, start_date, end_date, updated_at)
		SELECT $1, $2, $3, $4, $5, now() WHERE EXISTS (SELECT 1 FROM stores WHERE id = $1)
		ON CONFLICT (store_id) DO UPDATE
		SET status = EXCLUDED.status, plan = EXCLUDED.plan, start_date = EXCLUDED.start_date,
		    end_date = EXCLUDED.end_date, updated_at = now()
	`, storeID, string(rec.Status), rec.Plan, start, rec.EndDate.UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store %s: %w", storeID, ErrNotFound)
	}
	return nil
}
