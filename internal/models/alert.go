package models

import "time"

// 报警状态（生命周期状态机，见 internal/lifecycle）
const (
	AlertStatusActive        = "active"
	AlertStatusAcknowledged  = "acknowledged"
	AlertStatusResolved      = "resolved"
	AlertStatusFalsePositive = "false_positive"
)

// 报警严重级别（创建时由置信度推导，之后不再变更）
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert 报警领域模型（对应 alerts 表）
type Alert struct {
	// 主键
	AlertID string `db:"alert_id"` // UUID, PRIMARY KEY

	// 租户和位置关联
	TenantID string `db:"tenant_id"` // UUID, NOT NULL
	HouseID  string `db:"house_id"`  // UUID, NOT NULL
	DeviceID string `db:"device_id"` // UUID, NOT NULL

	// 触发事件（聚合型报警可为空）
	EventID *string `db:"event_id"` // UUID, nullable

	// 报警类型和命中的规则
	AlertTypeID string  `db:"alert_type_id"` // UUID, NOT NULL
	RuleID      *string `db:"rule_id"`       // UUID, nullable

	// 级别和状态
	Severity string `db:"severity"` // CHECK IN ('low', 'medium', 'high', 'critical')
	Status   string `db:"status"`   // CHECK IN ('active', 'acknowledged', 'resolved', 'false_positive')

	// 置信度（来自分类器，∈ [0,1]）
	ConfidenceScore *float64 `db:"confidence_score"` // NUMERIC(3,2), nullable

	// 处理信息
	AcknowledgedAt *time.Time `db:"acknowledged_at"` // TIMESTAMPTZ, nullable
	ResolvedAt     *time.Time `db:"resolved_at"`     // TIMESTAMPTZ, nullable
	Notes          *string    `db:"notes"`           // TEXT, nullable, 只追加

	// 时间戳
	CreatedAt time.Time `db:"created_at"` // TIMESTAMPTZ, NOT NULL
	UpdatedAt time.Time `db:"updated_at"` // TIMESTAMPTZ, NOT NULL
}

// IsTerminal 判断报警是否处于终态（终态报警不阻止新报警创建）
func (a *Alert) IsTerminal() bool {
	return a.Status == AlertStatusResolved || a.Status == AlertStatusFalsePositive
}
