/*
scheduler.go - Automated overdue invoice sweeper

PURPOSE:
  Periodically flips open invoices whose due date has passed to the
  overdue status, so the aging report and the allocation views reflect
  reality without manual intervention.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The sweep itself is a single idempotent UPDATE in the store;
    re-running it never double-marks an invoice
  - Paid and canceled invoices are never touched

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewOverdueSweeper(store, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: SweepOverdue endpoint (manual sweep)
  - store/sqlite: SweepOverdue implementation
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian/erp-core/store/sqlite"
)

// OverdueSweeper marks past-due invoices overdue on a schedule.
type OverdueSweeper struct {
	Store         *sqlite.Store
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueSweeper creates a new sweeper.
func NewOverdueSweeper(store *sqlite.Store, logger *zap.Logger) *OverdueSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueSweeper{
		Store:         store,
		Log:           logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (s *OverdueSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("overdue sweeper disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	s.Log.Info("overdue sweeper started", zap.Duration("check_interval", s.CheckInterval))
}

// Stop stops the sweeper.
func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info("overdue sweeper stopped")
	}
}

func (s *OverdueSweeper) run() {
	defer s.wg.Done()

	// Sweep immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *OverdueSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.Store.SweepOverdue(ctx, time.Now())
	if err != nil {
		s.Log.Error("overdue sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.Log.Info("overdue sweep completed", zap.Int("marked_overdue", count))
	}
}
