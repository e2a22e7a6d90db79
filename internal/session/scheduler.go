package session

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultPromoteInterval = 15 * time.Second

// Scheduler promotes due scheduled messages into the live send path on
// an interval.
type Scheduler struct {
	controller *Controller
	interval   time.Duration
	quit       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewScheduler builds a scheduler for one conversation controller.
func NewScheduler(controller *Controller, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultPromoteInterval
	}
	return &Scheduler{
		controller: controller,
		interval:   interval,
		quit:       make(chan struct{}),
	}
}

// Run promotes due messages until Close or context cancellation.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.quit:
				return
			case <-ticker.C:
				if err := s.controller.PromoteDue(ctx, time.Now().UTC()); err != nil {
					log.Printf("promote scheduled messages: %v", err)
				}
			}
		}
	}()
}

// Close stops the promotion loop and waits for it to exit.
func (s *Scheduler) Close() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
}
