package entity

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

// Scanner scans every registered entity at a fixed interval, one goroutine
// per entity
type Scanner struct {
	registry *Registry
	interval time.Duration
	clock    clock.Clock

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScanner creates a scanner. An interval of zero disables scanning.
func NewScanner(registry *Registry, interval time.Duration, clk clock.Clock) *Scanner {
	if clk == nil {
		clk = clock.New()
	}
	return &Scanner{
		registry: registry,
		interval: interval,
		clock:    clk,
	}
}

// Start launches the scan loops; it returns immediately
func (s *Scanner) Start(ctx context.Context) {
	if s.interval <= 0 {
		log.Info("[Scanner] Periodic scanning disabled")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.registry.All() {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	log.Infof("[Scanner] Scanning %d entities every %s", s.registry.Len(), s.interval)
}

// Stop cancels the scan loops and waits for in-flight scans
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scanner) loop(ctx context.Context, e *DetectionEntity) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Scan(ctx); err != nil {
				log.Warnf("[Scanner] %v", err)
			}
		}
	}
}
