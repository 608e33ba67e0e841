package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eizes/gis-gateway/internal/errors"
)

const (
	sessionKeyPrefix = "session:"
	stateKeyPrefix   = "state:"
)

// RedisStore is a Store backed by a shared redis instance, for deployments
// with more than one gateway process. Expiry is enforced server-side via key
// TTLs; state consumption uses GETDEL so racing callbacks cannot both win.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds connection parameters for the session redis.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Create(ctx context.Context, user User, tokens Tokens, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := GenerateToken()
	now := time.Now()
	session := &Session{
		ID:        id,
		User:      user,
		Tokens:    tokens,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+id, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	// Redis TTL normally handles this; the stored expiry is still checked so
	// a session is never returned past it.
	if !session.ExpiresAt.After(time.Now()) {
		_ = s.Delete(ctx, sessionID)
		return nil, errors.ErrSessionNotFound
	}
	return &session, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

func (s *RedisStore) RegisterPendingState(ctx context.Context, state string) error {
	return s.client.Set(ctx, stateKeyPrefix+state, "1", PendingStateTTL).Err()
}

func (s *RedisStore) ConsumePendingState(ctx context.Context, state string) (bool, error) {
	err := s.client.GetDel(ctx, stateKeyPrefix+state).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume state: %w", err)
	}
	return true, nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
