package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"homewatch-policy/internal/models"

	"go.uber.org/zap"
)

// EventsRepository 传感器事件仓库
type EventsRepository struct {
	runner DBTX
	logger *zap.Logger
}

// NewEventsRepository 创建事件仓库
func NewEventsRepository(db *sql.DB, logger *zap.Logger) *EventsRepository {
	return &EventsRepository{
		runner: db,
		logger: logger,
	}
}

// WithTx 返回在给定事务上执行的仓库副本
func (r *EventsRepository) WithTx(tx *sql.Tx) *EventsRepository {
	return &EventsRepository{
		runner: tx,
		logger: r.logger,
	}
}

// CreateEvent 插入传感器事件
func (r *EventsRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event.HouseID == "" {
		return fmt.Errorf("house_id is required")
	}

	query := `
		INSERT INTO events (
			event_id,
			tenant_id,
			house_id,
			device_id,
			event_type,
			raw_data,
			media_url,
			is_processed,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`

	err := r.runner.QueryRowContext(ctx, query,
		event.EventID,
		event.TenantID,
		event.HouseID,
		event.DeviceID,
		event.EventType,
		event.RawData,
		event.MediaURL,
		event.IsProcessed,
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEvent 根据 event_id 获取单个事件（需验证 tenant_id）
func (r *EventsRepository) GetEvent(ctx context.Context, tenantID, eventID string) (*models.Event, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := `
		SELECT
			event_id,
			tenant_id,
			house_id,
			device_id,
			event_type,
			raw_data,
			media_url,
			is_processed,
			created_at
		FROM events
		WHERE event_id = $1
		  AND tenant_id = $2
	`

	var event models.Event
	var deviceID, mediaURL sql.NullString

	err := r.runner.QueryRowContext(ctx, query, eventID, tenantID).Scan(
		&event.EventID,
		&event.TenantID,
		&event.HouseID,
		&deviceID,
		&event.EventType,
		&event.RawData,
		&mediaURL,
		&event.IsProcessed,
		&event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if deviceID.Valid {
		event.DeviceID = deviceID.String
	}
	if mediaURL.Valid {
		event.MediaURL = &mediaURL.String
	}

	return &event, nil
}

// CountProcessedByLabel 统计聚合窗口 (since, until] 内同房屋同 label 已处理事件数
// label 取自推理结果写回的 raw_data->inference->label
// 上界取事件时间戳，窗口之后落库的行不计入
func (r *EventsRepository) CountProcessedByLabel(ctx context.Context, tenantID, houseID, label string, since, until time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM events
		WHERE tenant_id = $1
		  AND house_id = $2
		  AND is_processed = TRUE
		  AND raw_data->'inference'->>'label' = $3
		  AND created_at > $4
		  AND created_at <= $5
	`

	var count int
	err := r.runner.QueryRowContext(ctx, query, tenantID, houseID, label, since, until).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count processed events: %w", err)
	}

	return count, nil
}

// MarkProcessed 将推理结果写回事件并标记已处理
func (r *EventsRepository) MarkProcessed(ctx context.Context, tenantID, eventID string, classification *models.Classification) error {
	query := `
		UPDATE events
		SET is_processed = TRUE,
		    raw_data = jsonb_set(
		        COALESCE(raw_data, '{}'::jsonb),
		        '{inference}',
		        jsonb_build_object('label', $3::text, 'score', $4::numeric)
		    )
		WHERE event_id = $1
		  AND tenant_id = $2
	`

	result, err := r.runner.ExecContext(ctx, query, eventID, tenantID, classification.Label, classification.Score)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}

	return nil
}
