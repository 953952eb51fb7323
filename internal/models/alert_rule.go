package models

import "time"

// AlertRule 租户级报警规则（对应 alert_rules 表）
// 由租户管理端创建/编辑，策略引擎只读消费；同一 (tenant, alert_type)
// 历史上可能存在多行，只有 is_active=true 的行参与决策
type AlertRule struct {
	// 主键
	RuleID string `db:"rule_id"` // UUID, PRIMARY KEY

	// 作用域
	TenantID    string `db:"tenant_id"`     // UUID, NOT NULL
	AlertTypeID string `db:"alert_type_id"` // UUID, NOT NULL

	// 规则内容
	RuleName                   string   `db:"rule_name"`                    // VARCHAR(255), NOT NULL
	ConfidenceThreshold        *float64 `db:"confidence_threshold"`         // NUMERIC(3,2), nullable（空表示用系统默认）
	CooldownSeconds            int      `db:"cooldown_seconds"`             // INTEGER, DEFAULT 30
	DeduplicationWindowSeconds int      `db:"deduplication_window_seconds"` // INTEGER, DEFAULT 10
	SeverityLevel              *string  `db:"severity_level"`               // VARCHAR(50), nullable（级别下限提示）
	Description                *string  `db:"description"`                  // TEXT, nullable

	// 生效标记
	IsActive bool `db:"is_active"` // BOOLEAN, DEFAULT TRUE

	// 时间戳
	CreatedAt time.Time `db:"created_at"` // TIMESTAMPTZ, NOT NULL
	UpdatedAt time.Time `db:"updated_at"` // TIMESTAMPTZ, NOT NULL
}
