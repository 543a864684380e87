package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"sentineld/internal/domain"
	"sentineld/internal/observability"
)

// DefaultCheckInterval is the cadence of priced checks per sentinel.
const DefaultCheckInterval = 30 * time.Second

// TickFunc runs one check for a sentinel.
type TickFunc func(ctx context.Context, sentinelID string)

// Scheduler owns the table of active monitoring timers. Start and Stop are
// its only mutators; each sentinel gets one recurring timer whose callback
// runs to completion before the next tick for that sentinel fires.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[string]chan struct{} // sentinel id -> stop signal
	interval time.Duration
	tick     TickFunc
	baseCtx  context.Context
	logger   *log.Logger
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Ticks run against baseCtx, not a
// per-entry context: stopping a sentinel cancels its timer but lets any
// in-flight check complete and write its trailing activity.
func NewScheduler(baseCtx context.Context, interval time.Duration, tick TickFunc, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		entries:  make(map[string]chan struct{}),
		interval: interval,
		tick:     tick,
		baseCtx:  baseCtx,
		logger:   logger,
	}
}

// Start schedules recurring checks for a sentinel. No-op when already
// scheduled.
func (s *Scheduler) Start(sentinelID string) {
	s.mu.Lock()
	if _, exists := s.entries[sentinelID]; exists {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.entries[sentinelID] = stop
	count := len(s.entries)
	s.mu.Unlock()

	observability.UpdateActiveMonitors(count)
	s.logger.Printf("monitoring started for sentinel %s (interval %v)", sentinelID, s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-s.baseCtx.Done():
				return
			case <-ticker.C:
				s.tick(s.baseCtx, sentinelID)
			}
		}
	}()
}

// Stop cancels the timer for a sentinel. The in-flight check, if any,
// completes normally.
func (s *Scheduler) Stop(sentinelID string) {
	s.mu.Lock()
	stop, exists := s.entries[sentinelID]
	if exists {
		delete(s.entries, sentinelID)
	}
	count := len(s.entries)
	s.mu.Unlock()

	if !exists {
		return
	}
	close(stop)
	observability.UpdateActiveMonitors(count)
	s.logger.Printf("monitoring stopped for sentinel %s", sentinelID)
}

// Running reports whether a sentinel is currently scheduled.
func (s *Scheduler) Running(sentinelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.entries[sentinelID]
	return exists
}

// Count returns the number of scheduled sentinels.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StopAll cancels every timer and waits for timer goroutines to exit.
// In-flight checks still run to completion on the base context.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for id, stop := range s.entries {
		close(stop)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	observability.UpdateActiveMonitors(0)
	s.wg.Wait()
}

// Restore schedules every sentinel left in monitoring state, used at boot.
func (s *Scheduler) Restore(sentinels []*domain.Sentinel) {
	for _, sentinel := range sentinels {
		if sentinel.Status == domain.StatusMonitoring {
			s.Start(sentinel.ID)
		}
	}
}
