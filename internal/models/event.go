package models

import (
	"encoding/json"
	"time"
)

// Event 传感事件领域模型（对应 events 表）
// 创建后不可变；仅允许单向置位 is_processed，以及向 raw_data 追加分类结果
type Event struct {
	// 主键
	EventID string `db:"event_id"` // UUID, PRIMARY KEY

	// 租户和位置关联
	TenantID string `db:"tenant_id"` // UUID, NOT NULL
	HouseID  string `db:"house_id"`  // UUID, NOT NULL
	DeviceID string `db:"device_id"` // UUID, NOT NULL

	// 事件类型（如 "audio"）
	EventType string `db:"event_type"` // VARCHAR(100)

	// 原始数据（分类结果写入 raw_data.inference）
	RawData json.RawMessage `db:"raw_data"` // JSONB

	// 媒体文件路径（由存储服务写入）
	MediaURL *string `db:"media_url"` // VARCHAR(500), nullable

	// 处理标记（单向：false → true）
	IsProcessed bool `db:"is_processed"` // BOOLEAN, DEFAULT FALSE

	// 时间戳
	CreatedAt time.Time `db:"created_at"` // TIMESTAMPTZ, NOT NULL
}
