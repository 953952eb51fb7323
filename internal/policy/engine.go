package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"homewatch-policy/internal/models"
	"homewatch-policy/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertTypeSource 警报类型来源接口
type AlertTypeSource interface {
	GetByName(ctx context.Context, typeName string) (*models.AlertType, error)
}

// EventCounter 聚合窗口内事件计数接口
type EventCounter interface {
	CountProcessedByLabel(ctx context.Context, tenantID, houseID, label string, since, until time.Time) (int, error)
}

// AlertStore 临界区内的警报读写接口
type AlertStore interface {
	GetOpenAlert(ctx context.Context, tenantID, houseID, alertTypeID string) (*models.Alert, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
}

// Locker 按键临界区接口
// 同一 (house, alert_type) 的去重查询与插入必须串行执行
type Locker interface {
	WithAlertStore(ctx context.Context, key string, fn func(store AlertStore) error) error
}

// EvaluationInput 单次评估输入
type EvaluationInput struct {
	TenantID       string
	HouseID        string
	DeviceID       string
	EventID        *string // 触发事件ID（可为空）
	Classification models.Classification
	ObservedAt     time.Time // 分类产生时间，零值取当前时间
}

// Engine 策略评估引擎
// 对每条分类结果产出显式 Decision：创建警报或带原因的跳过
type Engine struct {
	labelTypes map[string]string // 分类 label → 警报类型名称
	types      AlertTypeSource
	resolver   *RuleResolver
	events     EventCounter
	locker     Locker
	logger     *zap.Logger
}

// NewEngine 创建策略引擎
func NewEngine(labelTypes map[string]string, types AlertTypeSource, resolver *RuleResolver, events EventCounter, locker Locker, logger *zap.Logger) *Engine {
	return &Engine{
		labelTypes: labelTypes,
		types:      types,
		resolver:   resolver,
		events:     events,
		locker:     locker,
		logger:     logger,
	}
}

// Evaluate 评估一条分类结果
// 返回错误仅表示基础设施故障；业务上的"不产生警报"是 Skipped 结果
func (e *Engine) Evaluate(ctx context.Context, input EvaluationInput) (Decision, error) {
	if input.TenantID == "" {
		return Decision{}, fmt.Errorf("tenant_id is required")
	}
	if input.HouseID == "" {
		return Decision{}, fmt.Errorf("house_id is required")
	}
	score := input.Classification.Score
	if score < 0 || score > 1 {
		return Decision{}, fmt.Errorf("confidence score must be in [0,1], got %v", score)
	}

	now := input.ObservedAt
	if now.IsZero() {
		now = time.Now()
	}
	label := input.Classification.Label

	// 未映射的 label 是硬停：记录并跳过，绝不猜测类型
	typeName, ok := e.labelTypes[label]
	if !ok {
		e.logger.Warn("classification label has no alert type mapping, skipping",
			zap.String("tenant_id", input.TenantID),
			zap.String("house_id", input.HouseID),
			zap.String("label", label))
		return Skipped(SkipUnmappedLabel), nil
	}

	alertType, err := e.types.GetByName(ctx, typeName)
	if err != nil {
		if errors.Is(err, repository.ErrAlertTypeNotFound) {
			e.logger.Warn("mapped alert type missing from catalog, skipping",
				zap.String("tenant_id", input.TenantID),
				zap.String("label", label),
				zap.String("type_name", typeName))
			return Skipped(SkipUnmappedLabel), nil
		}
		return Decision{}, fmt.Errorf("failed to resolve alert type: %w", err)
	}

	rule, err := e.resolver.Resolve(ctx, input.TenantID, alertType.AlertTypeID)
	if err != nil {
		return Decision{}, err
	}

	if score < rule.ConfidenceThreshold {
		e.logger.Debug("confidence below threshold, skipping",
			zap.String("tenant_id", input.TenantID),
			zap.String("house_id", input.HouseID),
			zap.String("label", label),
			zap.Float64("score", score),
			zap.Float64("threshold", rule.ConfidenceThreshold))
		return Skipped(SkipBelowThreshold), nil
	}

	// 聚合窗口内的既往事件数只用于升级严重级别，不单独触发警报
	// 窗口是 (now-window, now]，晚于事件时间戳的行不计入
	priorCount, err := e.events.CountProcessedByLabel(ctx, input.TenantID, input.HouseID, label, now.Add(-rule.AggregationWindow()), now)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count events in aggregation window: %w", err)
	}

	severity := SeverityForScore(score)
	escalated := rule.MinEventsForEscalation > 0 && priorCount >= rule.MinEventsForEscalation
	if escalated {
		severity = Escalate(severity)
	}
	if rule.SeverityFloor != "" {
		severity = FloorSeverity(severity, rule.SeverityFloor)
	}

	var decision Decision
	lockKey := fmt.Sprintf("house:%s:alert_type:%s", input.HouseID, alertType.AlertTypeID)

	err = e.locker.WithAlertStore(ctx, lockKey, func(store AlertStore) error {
		// 同房屋同类型只要有未关闭警报就抑制，与该警报的创建时间无关；
		// 终态警报从不阻止新警报
		existing, err := store.GetOpenAlert(ctx, input.TenantID, input.HouseID, alertType.AlertTypeID)
		if err != nil {
			return err
		}
		if existing != nil {
			decision = SuppressedBy(existing)
			return nil
		}

		alert := &models.Alert{
			AlertID:         uuid.New().String(),
			TenantID:        input.TenantID,
			HouseID:         input.HouseID,
			DeviceID:        input.DeviceID,
			EventID:         input.EventID,
			AlertTypeID:     alertType.AlertTypeID,
			RuleID:          rule.RuleID,
			Severity:        severity,
			Status:          models.AlertStatusActive,
			ConfidenceScore: &score,
		}
		if err := store.CreateAlert(ctx, alert); err != nil {
			return err
		}

		decision = Created(alert)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate in critical section: %w", err)
	}

	switch decision.Outcome {
	case OutcomeCreated:
		e.logger.Info("alert created",
			zap.String("tenant_id", input.TenantID),
			zap.String("house_id", input.HouseID),
			zap.String("alert_id", decision.Alert.AlertID),
			zap.String("alert_type", alertType.TypeName),
			zap.String("severity", severity),
			zap.Float64("score", score),
			zap.Bool("escalated", escalated))
	case OutcomeSkipped:
		e.logger.Info("duplicate alert suppressed",
			zap.String("tenant_id", input.TenantID),
			zap.String("house_id", input.HouseID),
			zap.String("alert_type", alertType.TypeName),
			zap.String("existing_alert_id", decision.Suppressor.AlertID))
	}

	return decision, nil
}

// repoLocker KeyedLocker 到 Locker 接口的适配
// 临界区内的警报读写切到锁所属事务上执行
type repoLocker struct {
	locker *repository.KeyedLocker
	alerts *repository.AlertsRepository
}

// NewRepoLocker 创建基于数据库咨询锁的 Locker
func NewRepoLocker(locker *repository.KeyedLocker, alerts *repository.AlertsRepository) Locker {
	return &repoLocker{locker: locker, alerts: alerts}
}

func (l *repoLocker) WithAlertStore(ctx context.Context, key string, fn func(store AlertStore) error) error {
	return l.locker.WithLock(ctx, key, func(tx *sql.Tx) error {
		return fn(l.alerts.WithTx(tx))
	})
}
