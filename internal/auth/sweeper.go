package auth

import (
	"context"
	"sync"
	"time"

	"github.com/kuitang/crud-e2e/internal/obs"
)

// DefaultSweepInterval is how often expired sessions are deleted.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper periodically deletes expired sessions.
type Sweeper struct {
	sessions *SessionService
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// StartSweeper starts deleting expired sessions every interval. A
// non-positive interval selects DefaultSweepInterval. Callers must call Stop.
func (s *SessionService) StartSweeper(interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	sw := &Sweeper{
		sessions: s,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	sw.wg.Add(1)
	go sw.loop()
	return sw
}

func (sw *Sweeper) loop() {
	defer sw.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	logger := obs.Pkg("auth")
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sw.interval)
			removed, err := sw.sessions.Cleanup(ctx)
			cancel()
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("expired sessions removed", "count", removed)
			}
		case <-sw.stopCh:
			return
		}
	}
}

// Stop stops the sweeper and waits for an in-flight sweep. Safe to call twice.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.stopCh)
	})
	sw.wg.Wait()
}
