package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"homewatch-policy/internal/models"

	"go.uber.org/zap"
)

// AlertsRepository 警报仓库
type AlertsRepository struct {
	runner DBTX
	logger *zap.Logger
}

// NewAlertsRepository 创建警报仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		runner: db,
		logger: logger,
	}
}

// WithTx 返回在给定事务上执行的仓库副本
// 评估临界区内的去重查询与插入必须走同一事务
func (r *AlertsRepository) WithTx(tx *sql.Tx) *AlertsRepository {
	return &AlertsRepository{
		runner: tx,
		logger: r.logger,
	}
}

// AlertFilters 警报列表过滤条件
type AlertFilters struct {
	HouseID     *string // 房屋ID
	DeviceID    *string // 设备ID
	AlertTypeID *string // 警报类型ID
	Severity    *string // 严重级别
	Status      *string // 状态
	StartTime   *time.Time
	EndTime     *time.Time
}

// ============================================
// 基础 CRUD 操作
// ============================================

// CreateAlert 插入新警报
func (r *AlertsRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if alert.HouseID == "" {
		return fmt.Errorf("house_id is required")
	}
	if alert.AlertTypeID == "" {
		return fmt.Errorf("alert_type_id is required")
	}

	query := `
		INSERT INTO alerts (
			alert_id,
			tenant_id,
			house_id,
			device_id,
			event_id,
			alert_type_id,
			rule_id,
			severity,
			status,
			confidence_score,
			notes,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.runner.QueryRowContext(ctx, query,
		alert.AlertID,
		alert.TenantID,
		alert.HouseID,
		alert.DeviceID,
		alert.EventID,
		alert.AlertTypeID,
		alert.RuleID,
		alert.Severity,
		alert.Status,
		alert.ConfidenceScore,
		alert.Notes,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetAlert 根据 alert_id 获取单个警报（需验证 tenant_id）
func (r *AlertsRepository) GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT
			alert_id,
			tenant_id,
			house_id,
			device_id,
			event_id,
			alert_type_id,
			rule_id,
			severity,
			status,
			confidence_score,
			acknowledged_at,
			resolved_at,
			notes,
			created_at,
			updated_at
		FROM alerts
		WHERE alert_id = $1
		  AND tenant_id = $2
	`

	alert, err := scanAlert(r.runner.QueryRowContext(ctx, query, alertID, tenantID))
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// GetOpenAlert 查找同房屋同类型的未关闭警报
// 只按状态过滤，不限创建时间：active/acknowledged 无论多旧都抑制新警报，
// 终态（resolved/false_positive）警报不参与。没有匹配时返回 (nil, nil)
func (r *AlertsRepository) GetOpenAlert(ctx context.Context, tenantID, houseID, alertTypeID string) (*models.Alert, error) {
	query := `
		SELECT
			alert_id,
			tenant_id,
			house_id,
			device_id,
			event_id,
			alert_type_id,
			rule_id,
			severity,
			status,
			confidence_score,
			acknowledged_at,
			resolved_at,
			notes,
			created_at,
			updated_at
		FROM alerts
		WHERE tenant_id = $1
		  AND house_id = $2
		  AND alert_type_id = $3
		  AND status IN ('active', 'acknowledged')
		ORDER BY created_at DESC
		LIMIT 1
	`

	alert, err := scanAlert(r.runner.QueryRowContext(ctx, query, tenantID, houseID, alertTypeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert: %w", err)
	}

	return alert, nil
}

// ListAlerts 查询警报列表（按创建时间倒序，分页）
func (r *AlertsRepository) ListAlerts(ctx context.Context, tenantID string, filters AlertFilters, limit, offset int) ([]*models.Alert, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}

	addCondition := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filters.HouseID != nil {
		addCondition("house_id", *filters.HouseID)
	}
	if filters.DeviceID != nil {
		addCondition("device_id", *filters.DeviceID)
	}
	if filters.AlertTypeID != nil {
		addCondition("alert_type_id", *filters.AlertTypeID)
	}
	if filters.Severity != nil {
		addCondition("severity", *filters.Severity)
	}
	if filters.Status != nil {
		addCondition("status", *filters.Status)
	}
	if filters.StartTime != nil {
		args = append(args, *filters.StartTime)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filters.EndTime != nil {
		args = append(args, *filters.EndTime)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM alerts WHERE %s`, whereClause)
	var total int
	if err := r.runner.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(`
		SELECT
			alert_id,
			tenant_id,
			house_id,
			device_id,
			event_id,
			alert_type_id,
			rule_id,
			severity,
			status,
			confidence_score,
			acknowledged_at,
			resolved_at,
			notes,
			created_at,
			updated_at
		FROM alerts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)-1, len(args))

	rows, err := r.runner.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, total, nil
}

// ============================================
// 状态流转
// ============================================

// ApplyTransition 带前置状态校验的状态更新（compare-and-set）
// 只有当前状态在 allowedFrom 中才更新；返回是否有行被更新
// stampField 非空时同时写入对应时间戳列（acknowledged_at / resolved_at）
func (r *AlertsRepository) ApplyTransition(ctx context.Context, tenantID, alertID, target string, allowedFrom []string, stampField string, notes *string) (bool, error) {
	if len(allowedFrom) == 0 {
		return false, fmt.Errorf("allowedFrom is required")
	}

	args := []interface{}{target, alertID, tenantID}
	setClauses := []string{"status = $1", "updated_at = NOW()"}

	if stampField != "" {
		// 列名来自内部状态机表，不接受外部输入
		setClauses = append(setClauses, fmt.Sprintf("%s = NOW()", stampField))
	}

	if notes != nil {
		args = append(args, *notes)
		setClauses = append(setClauses, fmt.Sprintf(
			"notes = CASE WHEN notes IS NULL THEN $%d ELSE notes || E'\\n' || $%d END", len(args), len(args)))
	}

	placeholders := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		args = append(args, s)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf(`
		UPDATE alerts
		SET %s
		WHERE alert_id = $2
		  AND tenant_id = $3
		  AND status IN (%s)
	`, strings.Join(setClauses, ", "), strings.Join(placeholders, ", "))

	result, err := r.runner.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update alert status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// scanner 统一 *sql.Row 与 *sql.Rows 的 Scan
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	var alert models.Alert
	var deviceID, eventID, ruleID, notes sql.NullString
	var confidenceScore sql.NullFloat64
	var acknowledgedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&alert.AlertID,
		&alert.TenantID,
		&alert.HouseID,
		&deviceID,
		&eventID,
		&alert.AlertTypeID,
		&ruleID,
		&alert.Severity,
		&alert.Status,
		&confidenceScore,
		&acknowledgedAt,
		&resolvedAt,
		&notes,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		alert.DeviceID = deviceID.String
	}
	if eventID.Valid {
		alert.EventID = &eventID.String
	}
	if ruleID.Valid {
		alert.RuleID = &ruleID.String
	}
	if confidenceScore.Valid {
		alert.ConfidenceScore = &confidenceScore.Float64
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if notes.Valid {
		alert.Notes = &notes.String
	}

	return &alert, nil
}
