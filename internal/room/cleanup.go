package room

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// cleaner releases media resources fire-and-forget on a bounded worker
// pool. Failures are logged and never surfaced to callers.
type cleaner struct {
	pool    *pool.Pool
	timeout time.Duration
}

func newCleaner(workers int, timeout time.Duration) *cleaner {
	return &cleaner{
		pool:    pool.New().WithMaxGoroutines(workers),
		timeout: timeout,
	}
}

// release schedules fn; owner and id only feed the log lines.
func (c *cleaner) release(owner, id string, fn func(ctx context.Context) error) {
	c.pool.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Str("module", "room").
				Str("owner", owner).Str("element", id).
				Msg("could not release media element")
			return
		}
		log.Debug().Str("module", "room").
			Str("owner", owner).Str("element", id).
			Msg("media element released")
	})
}

// wait blocks until all scheduled releases finished. Used on shutdown.
func (c *cleaner) wait() {
	c.pool.Wait()
}
