package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
)

// SnapshotConfig holds configuration for the valuation snapshot scheduler.
type SnapshotConfig struct {
	// Spec is a standard five-field cron expression.
	// Default: five minutes past midnight
	Spec string

	// Timeout bounds one snapshot run.
	// Default: 1 minute
	Timeout time.Duration
}

// DefaultSnapshotConfig returns default snapshot configuration.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		Spec:    "5 0 * * *",
		Timeout: time.Minute,
	}
}

// SnapshotScheduler records the signed-in user's collection value once a
// day, so the valuation history has a point even on days without edits.
type SnapshotScheduler struct {
	inventory *InventoryCache
	valuation *ValuationHistoryCache
	session   Session
	config    SnapshotConfig
	log       *zap.Logger

	mu        sync.Mutex
	cron      *cron.Cron
	isRunning bool
}

// NewSnapshotScheduler creates a new snapshot scheduler.
func NewSnapshotScheduler(d Deps, inventory *InventoryCache, valuation *ValuationHistoryCache, config SnapshotConfig) *SnapshotScheduler {
	defaults := DefaultSnapshotConfig()
	if config.Spec == "" {
		config.Spec = defaults.Spec
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	return &SnapshotScheduler{
		inventory: inventory,
		valuation: valuation,
		session:   d.Session,
		config:    config,
		log:       logger.Named(d.Logger, "snapshot"),
	}
}

// Start begins the scheduler.
func (s *SnapshotScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.config.Spec, s.runScheduled); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", s.config.Spec, err)
	}
	c.Start()
	s.cron = c
	s.isRunning = true

	s.log.Info("snapshot scheduler started", zap.String("spec", s.config.Spec))
	return nil
}

// Stop stops the scheduler and waits for a running snapshot to finish.
func (s *SnapshotScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.isRunning = false
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("snapshot scheduler stopped")
}

func (s *SnapshotScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	recorded, err := s.RunNow(ctx)
	switch {
	case err != nil:
		s.log.Warn("snapshot failed", zap.Error(err))
	case !recorded:
		s.log.Debug("snapshot skipped, nobody signed in")
	}
}

// RunNow records today's valuation point from the current inventory. It
// returns false when nobody is signed in.
func (s *SnapshotScheduler) RunNow(ctx context.Context) (bool, error) {
	if s.session.CurrentUserID() == "" {
		return false, nil
	}
	if _, err := s.inventory.Items(ctx); err != nil {
		return false, err
	}
	total := s.inventory.TotalValue().Value()
	if err := s.valuation.RecordValue(ctx, total); err != nil {
		return false, err
	}
	s.log.Info("recorded valuation snapshot", zap.String("value", total.String()))
	return true, nil
}
