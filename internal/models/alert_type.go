package models

import "time"

// AlertType 报警类型参照表（对应 alert_types 表）
// 创建后不可变；分类器 label 通过注入的映射表解析到 type_name
type AlertType struct {
	AlertTypeID string    `db:"alert_type_id"` // UUID, PRIMARY KEY
	TypeName    string    `db:"type_name"`     // VARCHAR(100), UNIQUE, NOT NULL
	Description *string   `db:"description"`   // TEXT, nullable
	CreatedAt   time.Time `db:"created_at"`    // TIMESTAMPTZ, NOT NULL
}
