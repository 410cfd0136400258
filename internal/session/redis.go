package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "scribe:session:"
	maxTxRetries       = 5
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL is applied on every write; zero keeps states until deleted.
	TTL time.Duration
}

// RedisStore keeps states as JSON values in Redis so several bot processes
// can share sessions. Update serializes writers per key inside this process
// with a mutex and across processes with WATCH/MULTI.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration

	locks *keyLocks
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisStore(rdb, cfg), nil
}

func newRedisStore(rdb *goredis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    cfg.TTL,
		locks:  newKeyLocks(),
	}
}

func (r *RedisStore) redisKey(key string) string {
	return r.prefix + key
}

func encodeState(st *State) ([]byte, error) {
	return json.Marshal(st)
}

func decodeState(raw []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if st.Data == nil {
		st.Data = map[string]any{}
	}
	if st.Cursors == nil {
		st.Cursors = map[string]*ArrayCursor{}
	}
	return &st, nil
}

// Put writes st, replacing any previous value.
func (r *RedisStore) Put(ctx context.Context, st *State) error {
	if st == nil || st.Key == "" {
		return errors.New("state key is required")
	}
	cp := st.Clone()
	cp.UpdatedAt = time.Now().UTC()
	raw, err := encodeState(cp)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.redisKey(st.Key), raw, r.ttl).Err()
}

// Get reads the state for key.
func (r *RedisStore) Get(ctx context.Context, key string) (*State, error) {
	raw, err := r.rdb.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeState(raw)
}

// Update applies fn inside an optimistic transaction, retrying when another
// process wrote the key in between.
func (r *RedisStore) Update(ctx context.Context, key string, fn func(st *State) error) error {
	unlock := r.locks.lock(key)
	defer unlock()

	rk := r.redisKey(key)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, rk).Bytes()
		if errors.Is(err, goredis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		st, err := decodeState(raw)
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		st.UpdatedAt = time.Now().UTC()
		out, err := encodeState(st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, rk, out, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, rk)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session %s: too much write contention", key)
}

// Delete removes the state for key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.redisKey(key)).Err()
}

// ExpireIdle scans all session keys and removes stale ones. Redis TTLs
// usually get there first; this covers stores configured without a TTL.
func (r *RedisStore) ExpireIdle(ctx context.Context, before time.Time) (int, error) {
	var cursor uint64
	n := 0
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return n, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			raw, err := r.rdb.Get(ctx, k).Bytes()
			if err != nil {
				continue
			}
			st, err := decodeState(raw)
			if err != nil || st.UpdatedAt.Before(before) {
				if err := r.rdb.Del(ctx, k).Err(); err == nil {
					n++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
