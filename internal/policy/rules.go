package policy

import (
	"context"
	"fmt"
	"time"

	"homewatch-policy/internal/models"

	"go.uber.org/zap"
)

// EffectiveRule 单次评估使用的生效参数集
// 租户规则覆盖系统默认值后的合并结果
// 去重抑制按警报状态判定（未关闭即抑制），cooldown/dedup 两列
// 随规则原样带出，供上层展示与缓存
type EffectiveRule struct {
	RuleID                   *string `json:"rule_id"` // 来源规则ID，纯默认值时为空
	ConfidenceThreshold      float64 `json:"confidence_threshold"`
	CooldownSeconds          int     `json:"cooldown_seconds"`
	DedupWindowSeconds       int     `json:"dedup_window_seconds"`
	AggregationWindowSeconds int     `json:"aggregation_window_seconds"`
	MinEventsForEscalation   int     `json:"min_events_for_escalation"`
	SeverityFloor            string  `json:"severity_floor,omitempty"`
}

// AggregationWindow 聚合升级窗口
func (r *EffectiveRule) AggregationWindow() time.Duration {
	return time.Duration(r.AggregationWindowSeconds) * time.Second
}

// Defaults 系统级默认参数
type Defaults struct {
	ConfidenceThreshold      float64
	AggregationWindowSeconds int
	MinEventsForEscalation   int
}

// RuleSource 规则来源接口
type RuleSource interface {
	GetActiveRules(ctx context.Context, tenantID, alertTypeID string) ([]*models.AlertRule, error)
}

// RuleResolver 生效规则解析器
// 数据库规则 + 系统默认值 → EffectiveRule，结果经 Redis 短 TTL 缓存
type RuleResolver struct {
	source   RuleSource
	cache    *RuleCache // 可为 nil（缓存关闭）
	defaults Defaults
	logger   *zap.Logger
}

// NewRuleResolver 创建规则解析器
func NewRuleResolver(source RuleSource, cache *RuleCache, defaults Defaults, logger *zap.Logger) *RuleResolver {
	return &RuleResolver{
		source:   source,
		cache:    cache,
		defaults: defaults,
		logger:   logger,
	}
}

// Resolve 解析租户在指定警报类型上的生效规则
// 同一类型多条启用规则时取最近修改的一条并告警日志
func (r *RuleResolver) Resolve(ctx context.Context, tenantID, alertTypeID string) (*EffectiveRule, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, tenantID, alertTypeID); ok {
			return cached, nil
		}
	}

	rules, err := r.source.GetActiveRules(ctx, tenantID, alertTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert rules: %w", err)
	}

	effective := &EffectiveRule{
		ConfidenceThreshold:      r.defaults.ConfidenceThreshold,
		AggregationWindowSeconds: r.defaults.AggregationWindowSeconds,
		MinEventsForEscalation:   r.defaults.MinEventsForEscalation,
	}

	if len(rules) > 0 {
		if len(rules) > 1 {
			r.logger.Warn("multiple active rules for alert type, using most recently updated",
				zap.String("tenant_id", tenantID),
				zap.String("alert_type_id", alertTypeID),
				zap.Int("rule_count", len(rules)),
				zap.String("selected_rule_id", rules[0].RuleID))
		}

		rule := rules[0]
		effective.RuleID = &rule.RuleID
		effective.CooldownSeconds = rule.CooldownSeconds
		effective.DedupWindowSeconds = rule.DeduplicationWindowSeconds
		if rule.ConfidenceThreshold != nil {
			effective.ConfidenceThreshold = *rule.ConfidenceThreshold
		}
		if rule.SeverityLevel != nil {
			effective.SeverityFloor = *rule.SeverityLevel
		}
	}

	if r.cache != nil {
		r.cache.Set(ctx, tenantID, alertTypeID, effective)
	}

	return effective, nil
}
