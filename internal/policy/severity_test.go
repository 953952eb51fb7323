package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityForScore(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		expected string
	}{
		{"high at cutoff", 0.85, "high"},
		{"high above cutoff", 0.99, "high"},
		{"medium at cutoff", 0.70, "medium"},
		{"medium below high", 0.84, "medium"},
		{"low below medium", 0.69, "low"},
		{"low at zero", 0.0, "low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SeverityForScore(tt.score))
		})
	}
}

func TestEscalate(t *testing.T) {
	assert.Equal(t, "medium", Escalate("low"))
	assert.Equal(t, "high", Escalate("medium"))
	assert.Equal(t, "critical", Escalate("high"))
	assert.Equal(t, "critical", Escalate("critical"))
}

func TestFloorSeverity(t *testing.T) {
	// 下限只抬高，不降低
	assert.Equal(t, "high", FloorSeverity("medium", "high"))
	assert.Equal(t, "high", FloorSeverity("high", "medium"))
	assert.Equal(t, "critical", FloorSeverity("low", "critical"))
	assert.Equal(t, "medium", FloorSeverity("medium", ""))
}
