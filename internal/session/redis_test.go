package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestNewRedisStoreRequiresAddr(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), RedisConfig{Addr: "  "}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	r := newRedisStore(nil, RedisConfig{})
	if got := r.redisKey("telegram:1:2"); got != "scribe:session:telegram:1:2" {
		t.Fatalf("redisKey = %q", got)
	}
	r = newRedisStore(nil, RedisConfig{Prefix: "x:"})
	if got := r.redisKey("k"); got != "x:k" {
		t.Fatalf("redisKey = %q", got)
	}
}

func TestDecodeStateFillsMaps(t *testing.T) {
	st, err := decodeState([]byte(`{"key":"k","status":"collecting_data"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Data == nil || st.Cursors == nil {
		t.Fatalf("expected non-nil maps: %+v", st)
	}
	if _, err := decodeState([]byte("{")); err == nil {
		t.Fatalf("expected error for bad JSON")
	}
}

// TestRedisStoreLive runs against a real server when SCRIBE_TEST_REDIS is set.
func TestRedisStoreLive(t *testing.T) {
	addr := os.Getenv("SCRIBE_TEST_REDIS")
	if addr == "" {
		t.Skip("SCRIBE_TEST_REDIS not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Addr: addr, Prefix: "scribe-test:" + time.Now().Format("150405.000") + ":"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()

	if err := store.Put(ctx, NewState("k", "u")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err = store.Update(ctx, "k", func(st *State) error {
		st.Data["name"] = "Ada"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	st, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Data["name"] != "Ada" {
		t.Fatalf("data = %v", st.Data)
	}

	n, err := store.ExpireIdle(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expire = %d, %v", n, err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
