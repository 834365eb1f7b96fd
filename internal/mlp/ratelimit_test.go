package mlp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRateBudgetWaitsUntilReset(t *testing.T) {
	client := newTestRedis(t)
	budget := newRateBudget(client, "test:budget", 0)

	ctx := context.Background()
	budget.observe(ctx, 0, time.Now().Add(50*time.Millisecond))

	start := time.Now()
	require.NoError(t, budget.waitForBudget(ctx))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRateBudgetNoWaitWhenBudgetAvailable(t *testing.T) {
	client := newTestRedis(t)
	budget := newRateBudget(client, "test:budget2", 0)

	ctx := context.Background()
	budget.observe(ctx, 10, time.Now().Add(time.Hour))

	start := time.Now()
	require.NoError(t, budget.waitForBudget(ctx))
	require.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitMinIntervalEnforcesSpacing(t *testing.T) {
	budget := newRateBudget(nil, "", 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, budget.waitMinInterval(ctx))
	start := time.Now()
	require.NoError(t, budget.waitMinInterval(ctx))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
