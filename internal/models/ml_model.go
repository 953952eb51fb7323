package models

import "time"

// MLModel 推理模型元数据（对应 ml_models 表）
// 不变式：任意可观测时刻至多一行 is_active=true（由 registry 的激活事务保证）
type MLModel struct {
	// 主键
	ModelID string `db:"model_id"` // UUID, PRIMARY KEY

	// 模型标识
	ModelName string  `db:"model_name"` // VARCHAR(255), UNIQUE, NOT NULL
	Version   *string `db:"version"`    // VARCHAR(50), nullable

	// 工件位置（相对 models 目录）
	FilePath string `db:"file_path"` // VARCHAR(500), NOT NULL

	// 描述信息
	Description *string  `db:"description"` // TEXT, nullable
	ModelType   *string  `db:"model_type"`  // VARCHAR(100), nullable（如 'yamnet'）
	Accuracy    *float64 `db:"accuracy"`    // NUMERIC(5,4), nullable

	// 激活标记
	IsActive bool `db:"is_active"` // BOOLEAN, DEFAULT FALSE

	// 时间戳
	CreatedAt time.Time `db:"created_at"` // TIMESTAMPTZ, NOT NULL
	UpdatedAt time.Time `db:"updated_at"` // TIMESTAMPTZ, NOT NULL
}
