package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Seen-token store — each launch is evaluated at most once
// ---------------------------------------------------------------------------

// SeenStore records which mints have already been through the pipeline.
// MarkSeen returns true when the mint was not seen before; entries expire
// after the TTL so a restarted or re-listed token can eventually be
// re-evaluated.
type SeenStore interface {
	MarkSeen(ctx context.Context, mint chain.Pubkey) (bool, error)
	Seen(ctx context.Context, mint chain.Pubkey) (bool, error)
	Len(ctx context.Context) (int, error)
}

// Config configures the seen-token store.
type Config struct {
	// TTL is the retention window. Twice the maximum token age keeps a
	// token blocked for the whole period it could still pass the age gate.
	TTL time.Duration `yaml:"ttl"`

	// RedisAddr, when set, backs the store with Redis so restarts and
	// multiple instances share one view.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// DefaultConfig returns an in-memory store with a 10 minute window.
func DefaultConfig() Config {
	return Config{TTL: 10 * time.Minute}
}

// New creates the configured store: Redis-backed when an address is set,
// otherwise in-memory.
func New(config Config) SeenStore {
	if config.RedisAddr != "" {
		return NewRedisSeen(config)
	}
	return NewMemorySeen(config.TTL)
}

// ---------------------------------------------------------------------------
// In-memory backend
// ---------------------------------------------------------------------------

// MemorySeen is a TTL map. Expired entries are evicted lazily on access.
type MemorySeen struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[chain.Pubkey]time.Time
	now  func() time.Time
}

// NewMemorySeen creates an in-memory seen store.
func NewMemorySeen(ttl time.Duration) *MemorySeen {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemorySeen{
		ttl:  ttl,
		seen: make(map[chain.Pubkey]time.Time),
		now:  time.Now,
	}
}

func (m *MemorySeen) MarkSeen(_ context.Context, mint chain.Pubkey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evictLocked(now)

	if _, ok := m.seen[mint]; ok {
		return false, nil
	}
	m.seen[mint] = now.Add(m.ttl)
	return true, nil
}

func (m *MemorySeen) Seen(_ context.Context, mint chain.Pubkey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictLocked(m.now())
	_, ok := m.seen[mint]
	return ok, nil
}

func (m *MemorySeen) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictLocked(m.now())
	return len(m.seen), nil
}

func (m *MemorySeen) evictLocked(now time.Time) {
	for mint, expiry := range m.seen {
		if now.After(expiry) {
			delete(m.seen, mint)
		}
	}
}

// ---------------------------------------------------------------------------
// Redis backend
// ---------------------------------------------------------------------------

const redisKeyPrefix = "seen:"

// RedisSeen stores seen mints as SETNX keys with a TTL.
type RedisSeen struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSeen creates a Redis-backed seen store.
func NewRedisSeen(config Config) *RedisSeen {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	log.Info().Str("addr", config.RedisAddr).Dur("ttl", ttl).Msg("dedup: redis store")

	return &RedisSeen{client: client, ttl: ttl}
}

func (r *RedisSeen) MarkSeen(ctx context.Context, mint chain.Pubkey) (bool, error) {
	fresh, err := r.client.SetNX(ctx, redisKeyPrefix+string(mint), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: setnx: %w", err)
	}
	return fresh, nil
}

func (r *RedisSeen) Seen(ctx context.Context, mint chain.Pubkey) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+string(mint)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisSeen) Len(ctx context.Context) (int, error) {
	var count int
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("dedup: scan: %w", err)
	}
	return count, nil
}

// Ping verifies the Redis connection.
func (r *RedisSeen) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (r *RedisSeen) Close() error {
	return r.client.Close()
}
