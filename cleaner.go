package tokengate

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner periodically removes revocation records whose natural expiry has
// passed. Purging is a hygiene task: correctness never depends on it, because
// expired tokens are rejected by signature validation before any store
// lookup.
type Cleaner struct {
	engine   *Engine
	interval time.Duration
	log      *zap.Logger
}

// NewCleaner returns a cleaner driven by the engine's configured cleanup
// interval and clock.
func NewCleaner(engine *Engine) *Cleaner {
	return &Cleaner{
		engine:   engine,
		interval: engine.config.Revocation.CleanupInterval,
		log:      engine.log,
	}
}

// Run purges on start and then on every interval tick until ctx is canceled.
// Purge failures are logged and never stop the loop; the records in question
// are already inert and will be retried next tick.
func (c *Cleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	if _, err := c.Tick(ctx); err != nil {
		c.log.Warn("revocation purge failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.Tick(ctx); err != nil {
				c.log.Warn("revocation purge failed", zap.Error(err))
			}
		}
	}
}

// Tick runs a single purge pass and reports how many records were removed.
func (c *Cleaner) Tick(ctx context.Context) (int, error) {
	sctx, cancel := c.engine.storeCtx(ctx)
	defer cancel()

	purged, err := c.engine.store.PurgeExpired(sctx, c.engine.now())
	if err != nil {
		c.engine.metrics.storeErrors.Inc()
		return 0, err
	}
	if purged > 0 {
		c.engine.metrics.purgedRecords.Add(float64(purged))
		c.log.Info("purged expired revocation records", zap.Int("count", purged))
	}
	return purged, nil
}
