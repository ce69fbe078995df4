package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/weaverun/weave/a2a"
	"github.com/weaverun/weave/internal/metrics"
)

const cardKeyPrefix = "weave:card:"

// CardCache keeps discovered agent cards in Redis so the short-lived
// clients the delegation path constructs per call can share discovery
// results. A lookup that fails for transport reasons reads as a miss,
// which makes the caller refetch the card instead of failing the call.
type CardCache struct {
	manager   *Manager
	collector *metrics.Collector
	logger    *zap.Logger
}

var _ a2a.CardCache = (*CardCache)(nil)

// NewCardCache wraps a manager. collector may be nil.
func NewCardCache(manager *Manager, collector *metrics.Collector, logger *zap.Logger) *CardCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardCache{
		manager:   manager,
		collector: collector,
		logger:    logger.With(zap.String("component", "card_cache")),
	}
}

// GetCard returns the cached card for an agent address, if present.
func (c *CardCache) GetCard(ctx context.Context, address string) (*a2a.AgentCard, bool) {
	var card a2a.AgentCard
	err := c.manager.GetJSON(ctx, cardKeyPrefix+address, &card)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("card lookup failed", zap.String("address", address), zap.Error(err))
		}
		if c.collector != nil {
			c.collector.RecordCacheMiss("agent_card")
		}
		return nil, false
	}
	if c.collector != nil {
		c.collector.RecordCacheHit("agent_card")
	}
	return &card, true
}

// PutCard stores a discovered card under the agent address for ttl.
func (c *CardCache) PutCard(ctx context.Context, address string, card *a2a.AgentCard, ttl time.Duration) {
	if card == nil {
		return
	}
	if err := c.manager.SetJSON(ctx, cardKeyPrefix+address, card, ttl); err != nil {
		c.logger.Warn("card store failed", zap.String("address", address), zap.Error(err))
	}
}
