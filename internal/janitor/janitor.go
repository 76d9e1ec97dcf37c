// Package janitor keeps the cache honest: it rebuilds nominations from the
// store at startup and sweeps stale start handshakes on a fixed tick.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/dependencies/clock"
	"github.com/playrival/rival-server/internal/storage"
)

const (
	// DefaultSweepInterval is how often stale handshakes are swept
	DefaultSweepInterval = 60 * time.Second

	// DefaultStartTTL is how long a start handshake may live after its
	// first touch; later touches do not extend it
	DefaultStartTTL = 5 * time.Minute
)

// Janitor owns the cache maintenance tasks
type Janitor struct {
	storage storage.Storage
	cache   *cache.Manager
	clock   clock.Clock
	logger  *slog.Logger

	sweepInterval time.Duration
	startTTL      time.Duration
}

// New creates a Janitor with the default cadence
func New(store storage.Storage, cacheManager *cache.Manager, clk clock.Clock, logger *slog.Logger) *Janitor {
	return &Janitor{
		storage:       store,
		cache:         cacheManager,
		clock:         clk,
		logger:        logger.With(slog.String("component", "janitor")),
		sweepInterval: DefaultSweepInterval,
		startTTL:      DefaultStartTTL,
	}
}

// WarmUp seeds the nomination cache from every selection whose challenge is
// still IN_PROGRESS. A failure here must abort bring-up: serving with a
// stale cache is worse than not serving.
func (j *Janitor) WarmUp(ctx context.Context) error {
	selections, err := j.storage.LoadActiveSelections(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm nomination cache: %w", err)
	}
	j.cache.SeedNominations(selections)
	j.logger.Info("nomination cache warmed", slog.Int("selections", len(selections)))
	return nil
}

// Run sweeps stale start handshakes until the context is cancelled
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.sweepInterval)
	defer ticker.Stop()

	j.logger.Info("janitor started",
		slog.Duration("sweep_interval", j.sweepInterval),
		slog.Duration("start_ttl", j.startTTL))

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		}
	}
}

// Sweep evicts start handshakes older than the TTL
func (j *Janitor) Sweep() {
	if evicted := j.cache.EvictStaleStarts(j.clock.Now(), j.startTTL); evicted > 0 {
		j.logger.Info("stale start handshakes evicted", slog.Int("count", evicted))
	}
}
