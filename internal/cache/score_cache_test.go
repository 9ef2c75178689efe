package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronosmart/trust-monitor/internal/model"
)

func setupCache(t *testing.T, ttl time.Duration) (*ScoreCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewScoreCache(client, ttl), mr
}

func TestScoreCache_SetGet(t *testing.T) {
	c, _ := setupCache(t, time.Minute)
	ctx := context.Background()

	score := &model.RiskScore{
		WalletAddress: "0xabc",
		UserType:      model.UserTypeBuyer,
		RiskScore:     75,
		RiskLevel:     model.RiskLevelHigh,
		Flagged:       true,
	}
	require.NoError(t, c.Set(ctx, score))

	got, hit, err := c.Get(ctx, "0xabc")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 75, got.RiskScore)
	assert.Equal(t, model.RiskLevelHigh, got.RiskLevel)
	assert.True(t, got.Flagged)
}

func TestScoreCache_Miss(t *testing.T) {
	c, _ := setupCache(t, time.Minute)

	got, hit, err := c.Get(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

func TestScoreCache_Expiry(t *testing.T) {
	c, mr := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &model.RiskScore{WalletAddress: "0xabc", RiskScore: 50}))

	mr.FastForward(2 * time.Minute)

	_, hit, err := c.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestScoreCache_Invalidate(t *testing.T) {
	c, _ := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &model.RiskScore{WalletAddress: "0xabc", RiskScore: 50}))
	require.NoError(t, c.Invalidate(ctx, "0xabc"))

	_, hit, err := c.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestScoreCache_CorruptEntry(t *testing.T) {
	c, mr := setupCache(t, time.Minute)

	require.NoError(t, mr.Set(scoreKeyPrefix+"0xbad", "not-json"))

	got, hit, err := c.Get(context.Background(), "0xbad")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}
