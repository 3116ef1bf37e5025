// Package sweeper gives expired holds back to the seat pool.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-reservation/internal/logger"
)

type HoldReleaser interface {
	Release(ctx context.Context, holdIDs []int64, trigger string) (int, error)
	ReleaseExpired(ctx context.Context) (int, error)
}

// ExpirySource reports hold markers as they expire.
type ExpirySource interface {
	SubscribeExpired(ctx context.Context, handle func(ticketID int64)) error
}

// Sweeper deletes PENDING tickets older than the hold TTL on every tick. When
// an expiry source is set, holds are also released as soon as their marker
// expires; the periodic sweep stays authoritative.
type Sweeper struct {
	Holds    HoldReleaser
	Expiries ExpirySource
	Interval time.Duration
	Logger   *logger.Logger

	retry time.Duration
}

func New(holds HoldReleaser, expiries ExpirySource, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{Holds: holds, Expiries: expiries, Interval: interval, Logger: log, retry: 5 * time.Second}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.Logger.LogProcess("HOLD_SWEEPER", fmt.Sprintf("Started, interval %s", s.Interval))

	var wg sync.WaitGroup
	if s.Expiries != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.listen(ctx)
		}()
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.Logger.LogProcess("HOLD_SWEEPER", "Stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns how many holds it released.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	released, err := s.Holds.ReleaseExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.Logger.Error("HOLD_SWEEPER", fmt.Sprintf("Sweep failed: %v", err))
		}
		return 0
	}
	if released > 0 {
		s.Logger.LogProcess("HOLD_SWEEPER", fmt.Sprintf("Released %d expired holds", released))
	}
	return released
}

// listen keeps the expiry subscription alive, resubscribing after failures.
func (s *Sweeper) listen(ctx context.Context) {
	for {
		err := s.Expiries.SubscribeExpired(ctx, func(ticketID int64) {
			if _, err := s.Holds.Release(ctx, []int64{ticketID}, "expiry"); err != nil {
				s.Logger.Warn("HOLD_SWEEPER", fmt.Sprintf("Release of expired hold %d failed, next sweep retries: %v", ticketID, err))
			}
		})
		if ctx.Err() != nil {
			return
		}
		s.Logger.Warn("HOLD_SWEEPER", fmt.Sprintf("Expiry subscription ended: %v, retrying in %s", err, s.retry))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
}
