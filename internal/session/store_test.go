package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/schema"
)

func TestMemoryStoreUpdateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	st := NewState("telegram:1:1", "1")
	st.Data["count"] = 0
	if err := store.Put(ctx, st); err != nil {
		t.Fatalf("put: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, st.Key, func(s *State) error {
				s.Data["count"] = s.Data["count"].(int) + 1
				return nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, st.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data["count"] != 50 {
		t.Fatalf("expected 50 serialized increments, got %v", got.Data["count"])
	}
}

func TestMemoryStoreUpdateErrorDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Put(ctx, NewState("k", ""))

	boom := errors.New("boom")
	err := store.Update(ctx, "k", func(s *State) error {
		s.Data["x"] = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ := store.Get(ctx, "k")
	if _, ok := got.Data["x"]; ok {
		t.Fatalf("failed update must not persist")
	}
}

func TestMemoryStoreUnknownKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err := store.Update(ctx, "missing", func(*State) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete of unknown key should succeed: %v", err)
	}
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	st := NewState("k", "")
	_ = keypath.SetKey(st.Data, "property[0].address", "A")
	_ = store.Put(ctx, st)

	got, _ := store.Get(ctx, "k")
	_ = keypath.SetKey(got.Data, "property[0].address", "B")
	got.Cursor("property").Index = 4

	again, _ := store.Get(ctx, "k")
	if v, _ := keypath.Lookup(again.Data, "property[0].address"); v != "A" {
		t.Fatalf("stored data leaked through copy: %v", v)
	}
	if _, ok := again.Cursors["property"]; ok {
		t.Fatalf("stored cursors leaked through copy")
	}
}

func TestSweeperExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Put(ctx, NewState("old", ""))
	_ = store.Put(ctx, NewState("fresh", ""))

	store.mu.Lock()
	store.states["old"].UpdatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	sw, err := NewSweeper(store, 30*time.Minute, "@every 5m")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	if n := sw.Sweep(ctx); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old session should be gone")
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session should remain: %v", err)
	}
}

func TestNewSweeperRejectsBadInput(t *testing.T) {
	if _, err := NewSweeper(NewMemoryStore(), 0, ""); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if _, err := NewSweeper(NewMemoryStore(), time.Minute, "not a schedule"); err == nil {
		t.Fatalf("expected error for bad schedule")
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	st := NewState("web:abc", "u1")
	st.Status = StatusCollectingData
	st.RequiredKeys = []string{"user.dob", "property[].address"}
	st.Schema = schema.New()
	st.CurrentEntity = "property"
	st.Cursor("property").Index = 1
	_ = keypath.SetKey(st.Data, "property[0].address", "A")
	_ = keypath.SetKey(st.Data, "property[1].address", "B")

	raw, err := encodeState(st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := decodeState(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if idx, ok := back.CurrentEntityIndex(); !ok || idx != 1 {
		t.Fatalf("cursor lost: %d %v", idx, ok)
	}
	if v, _ := keypath.Lookup(back.Data, "property[1].address"); v != "B" {
		t.Fatalf("data lost: %v", v)
	}
	if back.Status != StatusCollectingData {
		t.Fatalf("status lost: %s", back.Status)
	}
}

func TestMemoryStoreReleasesKeyLocks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("api:%d", i)
		if err := store.Put(ctx, NewState(key, "")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := store.Update(ctx, key, func(s *State) error { return nil }); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("live states = %d", store.Len())
	}
	if n := store.locks.len(); n != 0 {
		t.Fatalf("retained key locks = %d", n)
	}
}

func TestExpireDuringUpdateKeepsNewerState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Put(ctx, NewState("k", "")); err != nil {
		t.Fatalf("put: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	updated := make(chan error, 1)
	go func() {
		updated <- store.Update(ctx, "k", func(s *State) error {
			close(entered)
			<-release
			s.Data["who"] = "stale"
			return nil
		})
	}()
	<-entered

	if n, _ := store.ExpireIdle(ctx, time.Now().Add(time.Minute)); n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	put := make(chan error, 1)
	go func() {
		fresh := NewState("k", "")
		fresh.Data["who"] = "fresh"
		put <- store.Put(ctx, fresh)
	}()
	close(release)
	if err := <-updated; err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := <-put; err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data["who"] != "fresh" {
		t.Fatalf("who = %v, want fresh", got.Data["who"])
	}
	if n := store.locks.len(); n != 0 {
		t.Fatalf("retained key locks = %d", n)
	}
}
