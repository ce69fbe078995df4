package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weaverun/weave/a2a"
	"github.com/weaverun/weave/internal/metrics"
)

var cardTestMetrics = metrics.NewCollector("weavetestcache", zap.NewNop())

func TestCardCache(t *testing.T) {
	ctx := context.Background()
	card := &a2a.AgentCard{
		Name:         "billing",
		URL:          "https://billing.example.com/a2a",
		Version:      "1.2.0",
		Capabilities: []string{"invoices"},
	}

	t.Run("round trip", func(t *testing.T) {
		_, manager := newTestManager(t)
		cc := NewCardCache(manager, cardTestMetrics, zap.NewNop())

		cc.PutCard(ctx, "https://billing.example.com/a2a", card, time.Minute)

		got, ok := cc.GetCard(ctx, "https://billing.example.com/a2a")
		require.True(t, ok)
		assert.Equal(t, card, got)
	})

	t.Run("cards live under the weave namespace", func(t *testing.T) {
		mr, manager := newTestManager(t)
		cc := NewCardCache(manager, nil, nil)

		cc.PutCard(ctx, "addr-1", card, time.Minute)
		assert.True(t, mr.Exists("weave:card:addr-1"))
	})

	t.Run("unknown address misses", func(t *testing.T) {
		_, manager := newTestManager(t)
		cc := NewCardCache(manager, cardTestMetrics, zap.NewNop())

		got, ok := cc.GetCard(ctx, "https://unknown.example.com")
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("expired card misses", func(t *testing.T) {
		mr, manager := newTestManager(t)
		cc := NewCardCache(manager, nil, nil)

		cc.PutCard(ctx, "addr-1", card, 100*time.Millisecond)
		mr.FastForward(200 * time.Millisecond)

		_, ok := cc.GetCard(ctx, "addr-1")
		assert.False(t, ok)
	})

	t.Run("nil card is not stored", func(t *testing.T) {
		mr, manager := newTestManager(t)
		cc := NewCardCache(manager, nil, nil)

		cc.PutCard(ctx, "addr-1", nil, time.Minute)
		assert.False(t, mr.Exists("weave:card:addr-1"))
	})

	t.Run("backend failure reads as a miss", func(t *testing.T) {
		_, manager := newTestManager(t)
		cc := NewCardCache(manager, cardTestMetrics, zap.NewNop())
		require.NoError(t, manager.Close())

		_, ok := cc.GetCard(ctx, "addr-1")
		assert.False(t, ok)
	})
}

func TestCardCache_SatisfiesClientContract(t *testing.T) {
	_, manager := newTestManager(t)
	var cache a2a.CardCache = NewCardCache(manager, nil, nil)

	ctx := context.Background()
	cache.PutCard(ctx, "addr-1", &a2a.AgentCard{Name: "n", URL: "u", Version: "1"}, time.Minute)
	got, ok := cache.GetCard(ctx, "addr-1")
	require.True(t, ok)
	assert.Equal(t, "n", got.Name)
}
