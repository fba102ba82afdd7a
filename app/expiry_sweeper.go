package app

import (
	"log"
	"time"
)

// expirer is the engine surface the sweeper needs.
type expirer interface {
	SweepExpired() (int64, error)
}

// ExpirySweeper periodically transitions overdue live negotiations to
// expired. Reads already expire lazily; the sweep keeps listings and
// analytics honest for sessions nobody touches again.
type ExpirySweeper struct {
	engine   expirer
	interval time.Duration
	done     chan struct{}
}

// NewExpirySweeper creates a sweeper with the given interval.
func NewExpirySweeper(engine expirer, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		engine:   engine,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *ExpirySweeper) Start() {
	log.Printf("🧹 Expiry sweeper started (every %v)", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			n, err := s.engine.SweepExpired()
			if err != nil {
				log.Printf("⚠️  Expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("🧹 Expired %d overdue negotiations", n)
			}
		}
	}
}

// Stop terminates the sweep loop.
func (s *ExpirySweeper) Stop() {
	close(s.done)
}
