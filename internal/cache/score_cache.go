package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cronosmart/trust-monitor/internal/model"
)

const scoreKeyPrefix = "trust:score:"

// ScoreCache 钱包风险评分缓存，写入带 TTL，过期自动失效
type ScoreCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewScoreCache 创建评分缓存
func NewScoreCache(client *redis.Client, ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ScoreCache{client: client, ttl: ttl}
}

// Get 读取缓存评分，未命中返回 (nil, false, nil)
func (c *ScoreCache) Get(ctx context.Context, wallet string) (*model.RiskScore, bool, error) {
	data, err := c.client.Get(ctx, scoreKeyPrefix+wallet).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var score model.RiskScore
	if err := json.Unmarshal(data, &score); err != nil {
		// 缓存内容损坏按未命中处理，同时清掉坏键
		c.client.Del(ctx, scoreKeyPrefix+wallet)
		return nil, false, nil
	}
	return &score, true, nil
}

// Set 写入评分
func (c *ScoreCache) Set(ctx context.Context, score *model.RiskScore) error {
	data, err := json.Marshal(score)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, scoreKeyPrefix+score.WalletAddress, data, c.ttl).Err()
}

// Invalidate 删除缓存评分
func (c *ScoreCache) Invalidate(ctx context.Context, wallet string) error {
	return c.client.Del(ctx, scoreKeyPrefix+wallet).Err()
}
