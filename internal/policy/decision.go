package policy

import "homewatch-policy/internal/models"

// DecisionOutcome 评估结果类型
type DecisionOutcome string

const (
	OutcomeCreated DecisionOutcome = "created" // 创建了新警报
	OutcomeSkipped DecisionOutcome = "skipped" // 正常跳过（非失败）
)

// SkipReason 跳过原因
type SkipReason string

const (
	SkipUnmappedLabel       SkipReason = "unmapped_label"       // label 没有对应的警报类型
	SkipBelowThreshold      SkipReason = "below_threshold"      // 置信度低于生效阈值
	SkipDuplicateSuppressed SkipReason = "duplicate_suppressed" // 抑制窗口内已有未关闭警报
)

// Decision 一次评估的显式结果
// 评估"不产生警报"是正常业务结果，与错误严格分开
type Decision struct {
	Outcome    DecisionOutcome
	Reason     SkipReason    // Outcome == OutcomeSkipped 时有效
	Alert      *models.Alert // Outcome == OutcomeCreated 时有效
	Suppressor *models.Alert // 去重抑制时命中的已有警报
}

// Created 构造创建结果
func Created(alert *models.Alert) Decision {
	return Decision{Outcome: OutcomeCreated, Alert: alert}
}

// Skipped 构造跳过结果
func Skipped(reason SkipReason) Decision {
	return Decision{Outcome: OutcomeSkipped, Reason: reason}
}

// SuppressedBy 构造被已有警报抑制的跳过结果
func SuppressedBy(existing *models.Alert) Decision {
	return Decision{Outcome: OutcomeSkipped, Reason: SkipDuplicateSuppressed, Suppressor: existing}
}
