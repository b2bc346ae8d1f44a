// Package metrics provides structured logging of replay buffer events.
package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Collector reports notable replay buffer events via a structured logger.
// A nil *Collector is valid and every method is a no-op on it, so callers
// that don't care about observability can pass nil through construction.
type Collector struct {
	logger zerolog.Logger
}

// NewCollector creates a Collector that logs through logger.
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{logger: logger}
}

// Added records that n elements were admitted to the store.
func (c *Collector) Added(n int) {
	if c == nil {
		return
	}
	c.logger.Debug().
		Str("metric", "replay_added").
		Int("count", n).
		Msg("elements admitted")
}

// Sampled records a completed sample call.
func (c *Collector) Sampled(batchSize int, dur time.Duration) {
	if c == nil {
		return
	}
	c.logger.Debug().
		Str("metric", "replay_sampled").
		Int("batch_size", batchSize).
		Dur("duration", dur).
		Msg("batch sampled")
}

// Evicted records that n slots were popped from the head of the ring.
func (c *Collector) Evicted(n int) {
	if c == nil {
		return
	}
	c.logger.Debug().
		Str("metric", "replay_evicted").
		Int("count", n).
		Msg("slots evicted")
}

// PriorityUpdateSkipped records that n priority updates were dropped
// because their target slots had already been evicted.
func (c *Collector) PriorityUpdateSkipped(n int) {
	if c == nil || n == 0 {
		return
	}
	c.logger.Warn().
		Str("metric", "replay_update_skipped").
		Int("count", n).
		Msg("priority update skipped on evicted slots")
}

// PrefetchDepth records the current depth of the prefetch FIFO.
func (c *Collector) PrefetchDepth(n int) {
	if c == nil {
		return
	}
	c.logger.Debug().
		Str("metric", "replay_prefetch_depth").
		Int("depth", n).
		Msg("prefetch queue depth")
}

// Fatal logs a contract-violation diagnostic immediately before the
// caller panics or aborts the process.
func (c *Collector) Fatal(op string, fields map[string]interface{}) {
	logger := zerolog.Nop()
	if c != nil {
		logger = c.logger
	}
	ev := logger.Error().Str("op", op)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("replay buffer contract violation")
}
