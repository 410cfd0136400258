package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically deletes sessions that have been idle longer than TTL.
// The turn handler treats a swept session as "not found" and starts over.
type Sweeper struct {
	cron  *cron.Cron
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewSweeper creates a sweeper; schedule is a standard 5-field cron spec or
// a descriptor such as "@every 1m".
func NewSweeper(store Store, ttl time.Duration, schedule string) (*Sweeper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	s := &Sweeper{
		cron:  cron.New(),
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Printf("[Session] Sweeper started (ttl %s)", s.ttl)
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one expiry pass and returns the number of sessions removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.store.ExpireIdle(ctx, s.now().Add(-s.ttl))
	if err != nil {
		log.Printf("[Session] Sweep failed: %v", err)
		return n
	}
	if n > 0 {
		log.Printf("[Session] Expired %d idle sessions", n)
	}
	return n
}
