package models

// Classification 分类器输出（由调用方持有分类器，引擎只消费结果）
type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"` // 置信度 ∈ [0,1]
}
