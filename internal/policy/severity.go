package policy

import "homewatch-policy/internal/models"

// 置信度分档阈值
const (
	highScoreCutoff   = 0.85
	mediumScoreCutoff = 0.70
)

var severityRank = map[string]int{
	models.SeverityLow:      1,
	models.SeverityMedium:   2,
	models.SeverityHigh:     3,
	models.SeverityCritical: 4,
}

// SeverityForScore 按置信度分档
// score >= 0.85 → high，score >= 0.70 → medium，否则 low
func SeverityForScore(score float64) string {
	switch {
	case score >= highScoreCutoff:
		return models.SeverityHigh
	case score >= mediumScoreCutoff:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Escalate 提升一档严重级别（critical 封顶）
func Escalate(severity string) string {
	switch severity {
	case models.SeverityLow:
		return models.SeverityMedium
	case models.SeverityMedium:
		return models.SeverityHigh
	case models.SeverityHigh, models.SeverityCritical:
		return models.SeverityCritical
	default:
		return severity
	}
}

// FloorSeverity 取两者中较高的级别
// 规则的 severity_level 作为下限，不会降低按分数得出的级别
func FloorSeverity(severity, floor string) string {
	if severityRank[floor] > severityRank[severity] {
		return floor
	}
	return severity
}
