package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/store"
)

// Materializer periodically expands recurring series into concrete bookings
// up to a rolling horizon. Multiple instances may run concurrently; the
// store's guarded advance makes a lost race a no-op, not a double booking.
type Materializer struct {
	series   store.RecurringStore
	engine   *engine.Engine
	logger   *slog.Logger
	interval time.Duration
	horizon  time.Duration
	batch    int
}

type Config struct {
	Interval  time.Duration // default 1m
	Horizon   time.Duration // how far ahead to materialize, default 14 days
	BatchSize int           // series per tick, default 100
}

func New(series store.RecurringStore, eng *engine.Engine, logger *slog.Logger, cfg Config) *Materializer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 14 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		series:   series,
		engine:   eng,
		logger:   logger,
		interval: cfg.Interval,
		horizon:  cfg.Horizon,
		batch:    cfg.BatchSize,
	}
}

// Run blocks until ctx is cancelled, processing one batch immediately and
// then on every tick.
func (m *Materializer) Run(ctx context.Context) {
	m.logger.Info("materializer started", "interval", m.interval, "horizon", m.horizon)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("materializer stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Materializer) tick(ctx context.Context) {
	horizon := time.Now().UTC().Add(m.horizon)
	due, err := m.series.DueSeries(ctx, horizon, m.batch)
	if err != nil {
		m.logger.Error("due series query failed", "err", err)
		return
	}
	for _, rb := range due {
		if ctx.Err() != nil {
			return
		}
		created, err := m.engine.MaterializeThrough(ctx, rb.ID, horizon)
		switch {
		case errors.Is(err, store.ErrConflict):
			// Another instance stepped the series first; it will be
			// picked up again on the next tick if still due.
			m.logger.Debug("series advanced elsewhere", "series_id", rb.ID)
		case err != nil:
			m.logger.Error("materialization failed", "series_id", rb.ID, "err", err)
		case created > 0:
			m.logger.Info("series materialized", "series_id", rb.ID, "bookings", created)
		}
	}
}
