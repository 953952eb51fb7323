package repository

import (
	"context"
	"database/sql"
	"fmt"

	"homewatch-policy/internal/models"

	"go.uber.org/zap"
)

// AlertRulesRepository 报警规则仓库
type AlertRulesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRulesRepository 创建报警规则仓库
func NewAlertRulesRepository(db *sql.DB, logger *zap.Logger) *AlertRulesRepository {
	return &AlertRulesRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveRules 获取租户在指定警报类型上启用的规则
// 按 updated_at 倒序，多条命中时第一条为最近修改的规则
func (r *AlertRulesRepository) GetActiveRules(ctx context.Context, tenantID, alertTypeID string) ([]*models.AlertRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertTypeID == "" {
		return nil, fmt.Errorf("alert_type_id is required")
	}

	query := `
		SELECT
			rule_id,
			tenant_id,
			alert_type_id,
			rule_name,
			confidence_threshold,
			cooldown_seconds,
			deduplication_window_seconds,
			severity_level,
			description,
			is_active,
			created_at,
			updated_at
		FROM alert_rules
		WHERE tenant_id = $1
		  AND alert_type_id = $2
		  AND is_active = TRUE
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, alertTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		var rule models.AlertRule
		var threshold sql.NullFloat64
		var severityLevel, description sql.NullString

		err := rows.Scan(
			&rule.RuleID,
			&rule.TenantID,
			&rule.AlertTypeID,
			&rule.RuleName,
			&threshold,
			&rule.CooldownSeconds,
			&rule.DeduplicationWindowSeconds,
			&severityLevel,
			&description,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}

		if threshold.Valid {
			rule.ConfidenceThreshold = &threshold.Float64
		}
		if severityLevel.Valid {
			rule.SeverityLevel = &severityLevel.String
		}
		if description.Valid {
			rule.Description = &description.String
		}

		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rules: %w", err)
	}

	return rules, nil
}
