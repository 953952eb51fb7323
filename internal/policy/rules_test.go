package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homewatch-policy/internal/models"
)

type fakeRuleSource struct {
	rules []*models.AlertRule
	err   error
	calls int
}

func (f *fakeRuleSource) GetActiveRules(ctx context.Context, tenantID, alertTypeID string) ([]*models.AlertRule, error) {
	f.calls++
	return f.rules, f.err
}

func testDefaults() Defaults {
	return Defaults{
		ConfidenceThreshold:      0.70,
		AggregationWindowSeconds: 60,
		MinEventsForEscalation:   1,
	}
}

func TestResolve_DefaultsWhenNoRules(t *testing.T) {
	source := &fakeRuleSource{}
	resolver := NewRuleResolver(source, nil, testDefaults(), zap.NewNop())

	rule, err := resolver.Resolve(context.Background(), "t1", "type1")

	require.NoError(t, err)
	assert.Nil(t, rule.RuleID)
	assert.Equal(t, 0.70, rule.ConfidenceThreshold)
	assert.Equal(t, 60, rule.AggregationWindowSeconds)
	assert.Equal(t, 1, rule.MinEventsForEscalation)
	assert.Equal(t, 0, rule.CooldownSeconds)
	assert.Empty(t, rule.SeverityFloor)
}

func TestResolve_RuleOverridesDefaults(t *testing.T) {
	threshold := 0.9
	floor := "high"
	ruleID := uuid.New().String()
	source := &fakeRuleSource{rules: []*models.AlertRule{{
		RuleID:                     ruleID,
		ConfidenceThreshold:        &threshold,
		CooldownSeconds:            120,
		DeduplicationWindowSeconds: 300,
		SeverityLevel:              &floor,
	}}}
	resolver := NewRuleResolver(source, nil, testDefaults(), zap.NewNop())

	rule, err := resolver.Resolve(context.Background(), "t1", "type1")

	require.NoError(t, err)
	require.NotNil(t, rule.RuleID)
	assert.Equal(t, ruleID, *rule.RuleID)
	assert.Equal(t, 0.9, rule.ConfidenceThreshold)
	assert.Equal(t, 120, rule.CooldownSeconds)
	assert.Equal(t, 300, rule.DedupWindowSeconds)
	assert.Equal(t, "high", rule.SeverityFloor)
	// 未覆盖的参数保持默认
	assert.Equal(t, 60, rule.AggregationWindowSeconds)
}

func TestResolve_MultipleRulesPicksFirst(t *testing.T) {
	// 来源按 updated_at 倒序，第一条即最近修改的规则
	newest := uuid.New().String()
	source := &fakeRuleSource{rules: []*models.AlertRule{
		{RuleID: newest, CooldownSeconds: 30},
		{RuleID: uuid.New().String(), CooldownSeconds: 999},
	}}
	resolver := NewRuleResolver(source, nil, testDefaults(), zap.NewNop())

	rule, err := resolver.Resolve(context.Background(), "t1", "type1")

	require.NoError(t, err)
	require.NotNil(t, rule.RuleID)
	assert.Equal(t, newest, *rule.RuleID)
	assert.Equal(t, 30, rule.CooldownSeconds)
}

func TestResolve_SourceError(t *testing.T) {
	source := &fakeRuleSource{err: errors.New("db down")}
	resolver := NewRuleResolver(source, nil, testDefaults(), zap.NewNop())

	_, err := resolver.Resolve(context.Background(), "t1", "type1")

	assert.Error(t, err)
}
