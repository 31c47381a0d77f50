package tasks

import (
	"fmt"
	"log/slog"
	"time"

	cron "github.com/netresearch/go-cron"
)

// RetentionConfig controls eviction of terminal task records. Eviction is
// an explicit choice: a zero config keeps every record for the lifetime of
// the process.
type RetentionConfig struct {
	Enabled  bool
	MaxAge   time.Duration // terminal records older than this are evicted
	Schedule string        // cron expression, e.g. "*/5 * * * *"
}

// Sweeper evicts terminal task records on a cron schedule. Evicted ids
// become NotFound to the polling API.
type Sweeper struct {
	store  Store
	maxAge time.Duration
	cron   *cron.Cron
}

// NewSweeper builds a sweeper from config. Returns nil when retention is
// disabled.
func NewSweeper(store Store, cfg RetentionConfig) (*Sweeper, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max_age must be positive, got %s", cfg.MaxAge)
	}

	s := &Sweeper{store: store, maxAge: cfg.MaxAge, cron: cron.New()}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins the sweep schedule. Safe to call on a nil sweeper.
func (s *Sweeper) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	slog.Info("task retention sweeper started", "max_age", s.maxAge)
}

// Stop halts the schedule and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// sweep deletes terminal records whose last update is older than maxAge.
func (s *Sweeper) sweep() {
	all, err := s.store.List(ListFilter{})
	if err != nil {
		slog.Error("retention sweep list", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	evicted := 0
	for _, t := range all {
		if !t.Status.Terminal() || t.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.store.Delete(t.ID); err != nil {
			slog.Warn("retention evict", "task_id", t.ID, "error", err)
			continue
		}
		evicted++
	}
	if evicted > 0 {
		slog.Info("retention sweep", "evicted", evicted)
	}
}
