package lifecycle

import (
	"context"
	"fmt"

	"homewatch-policy/internal/models"

	"go.uber.org/zap"
)

// Action 警报生命周期操作
type Action string

const (
	ActionAcknowledge Action = "acknowledge" // active → acknowledged
	ActionResolve     Action = "resolve"     // active/acknowledged → resolved
	ActionDismiss     Action = "dismiss"     // active/acknowledged → false_positive
)

// InvalidStateTransitionError 非法状态流转
type InvalidStateTransitionError struct {
	Current   string
	Requested Action
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s alert in status %s", e.Requested, e.Current)
}

// transition 单条流转规则
type transition struct {
	allowedFrom []string
	target      string
	stampField  string // 流转成功时写入的时间戳列
}

var transitions = map[Action]transition{
	ActionAcknowledge: {
		allowedFrom: []string{models.AlertStatusActive},
		target:      models.AlertStatusAcknowledged,
		stampField:  "acknowledged_at",
	},
	ActionResolve: {
		allowedFrom: []string{models.AlertStatusActive, models.AlertStatusAcknowledged},
		target:      models.AlertStatusResolved,
		stampField:  "resolved_at",
	},
	// dismiss 只改状态和追加备注，resolved_at 专属于 resolve
	ActionDismiss: {
		allowedFrom: []string{models.AlertStatusActive, models.AlertStatusAcknowledged},
		target:      models.AlertStatusFalsePositive,
	},
}

// AlertStore 生命周期管理依赖的仓库接口
type AlertStore interface {
	GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error)
	ApplyTransition(ctx context.Context, tenantID, alertID, target string, allowedFrom []string, stampField string, notes *string) (bool, error)
}

// Manager 警报生命周期管理器
// 所有状态变更走 compare-and-set 更新，终态警报不可再流转
type Manager struct {
	store  AlertStore
	logger *zap.Logger
}

// NewManager 创建生命周期管理器
func NewManager(store AlertStore, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// Transition 执行生命周期操作并返回更新后的警报
// 并发下以数据库的条件更新为准：0 行命中再查当前状态报 InvalidStateTransitionError
func (m *Manager) Transition(ctx context.Context, tenantID, alertID string, action Action, notes *string) (*models.Alert, error) {
	t, ok := transitions[action]
	if !ok {
		return nil, fmt.Errorf("unknown lifecycle action: %s", action)
	}

	updated, err := m.store.ApplyTransition(ctx, tenantID, alertID, t.target, t.allowedFrom, t.stampField, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}

	if !updated {
		current, err := m.store.GetAlert(ctx, tenantID, alertID)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidStateTransitionError{Current: current.Status, Requested: action}
	}

	alert, err := m.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("alert transitioned",
		zap.String("tenant_id", tenantID),
		zap.String("alert_id", alertID),
		zap.String("action", string(action)),
		zap.String("status", alert.Status))

	return alert, nil
}

// Acknowledge 确认警报
func (m *Manager) Acknowledge(ctx context.Context, tenantID, alertID string, notes *string) (*models.Alert, error) {
	return m.Transition(ctx, tenantID, alertID, ActionAcknowledge, notes)
}

// Resolve 关闭警报
func (m *Manager) Resolve(ctx context.Context, tenantID, alertID string, notes *string) (*models.Alert, error) {
	return m.Transition(ctx, tenantID, alertID, ActionResolve, notes)
}

// Dismiss 标记误报
func (m *Manager) Dismiss(ctx context.Context, tenantID, alertID string, notes *string) (*models.Alert, error) {
	return m.Transition(ctx, tenantID, alertID, ActionDismiss, notes)
}
