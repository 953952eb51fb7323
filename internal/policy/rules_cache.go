package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RuleCache 生效规则的 Redis 缓存
// 缓存是尽力而为的：Redis 故障降级为直接查库，不影响评估
type RuleCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRuleCache 创建规则缓存
func NewRuleCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RuleCache {
	return &RuleCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func ruleCacheKey(tenantID, alertTypeID string) string {
	return fmt.Sprintf("policy:rule:%s:%s", tenantID, alertTypeID)
}

// Get 读取缓存的生效规则，未命中或反序列化失败返回 (nil, false)
func (c *RuleCache) Get(ctx context.Context, tenantID, alertTypeID string) (*EffectiveRule, bool) {
	data, err := c.client.Get(ctx, ruleCacheKey(tenantID, alertTypeID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("rule cache read failed, falling back to database",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil, false
	}

	var rule EffectiveRule
	if err := json.Unmarshal(data, &rule); err != nil {
		c.logger.Warn("rule cache entry corrupt, discarding",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil, false
	}

	return &rule, true
}

// Set 写入缓存，失败只记录
func (c *RuleCache) Set(ctx context.Context, tenantID, alertTypeID string, rule *EffectiveRule) {
	data, err := json.Marshal(rule)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, ruleCacheKey(tenantID, alertTypeID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("rule cache write failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

// Invalidate 删除缓存条目（规则变更后调用）
func (c *RuleCache) Invalidate(ctx context.Context, tenantID, alertTypeID string) {
	if err := c.client.Del(ctx, ruleCacheKey(tenantID, alertTypeID)).Err(); err != nil {
		c.logger.Warn("rule cache invalidate failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}
