package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"resellerhub/internal/store"
	"resellerhub/internal/subscription"
)

// Loader is the authoritative source the cache fills from.
type Loader interface {
	GetSubscription(ctx context.Context, storeID string) (subscription.Raw, error)
}

// Snapshots is a read-through cache of raw subscription records. Only the
// record is cached; evaluations are always recomputed by callers.
type Snapshots struct {
	client *redis.Client
	loader Loader
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to url. An empty url disables caching and every read goes to
// the loader.
func New(url string, loader Loader, ttl time.Duration, logger *zap.Logger) (*Snapshots, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Snapshots{loader: loader, ttl: ttl, logger: logger}
	if url == "" {
		return s, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	s.client = redis.NewClient(opt)
	return s, nil
}

func key(storeID string) string {
	return "subscription:" + storeID
}

// Subscription returns the freshest snapshot for storeID, or nil when the
// store has none.
func (s *Snapshots) Subscription(ctx context.Context, storeID string) (*subscription.Raw, error) {
	if s.client != nil {
		data, err := s.client.Get(ctx, key(storeID)).Bytes()
		switch {
		case err == nil:
			var raw subscription.Raw
			if err := json.Unmarshal(data, &raw); err == nil {
				return &raw, nil
			}
			s.logger.Warn("cache entry undecodable", zap.String("store_id", storeID))
		case !errors.Is(err, redis.Nil):
			s.logger.Warn("cache read failed, falling back to store", zap.String("store_id", storeID), zap.Error(err))
		}
	}

	raw, err := s.loader.GetSubscription(ctx, storeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s.fill(ctx, storeID, raw)
	return &raw, nil
}

func (s *Snapshots) fill(ctx context.Context, storeID string, raw subscription.Raw) {
	if s.client == nil {
		return
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	// SETNX so a read that loaded before a write cannot replace the record
	// the writer stored with Put.
	if err := s.client.SetNX(ctx, key(storeID), data, s.ttl).Err(); err != nil {
		s.logger.Warn("cache fill failed", zap.String("store_id", storeID), zap.Error(err))
	}
}

// Put stores the record a writer just persisted, replacing any entry.
func (s *Snapshots) Put(ctx context.Context, storeID string, raw subscription.Raw) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(storeID), data, s.ttl).Err()
}

// Invalidate drops the cached snapshot after a write.
func (s *Snapshots) Invalidate(ctx context.Context, storeID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, key(storeID)).Err()
}

func (s *Snapshots) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

func (s *Snapshots) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
