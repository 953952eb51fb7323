package repository

import (
	"context"
	"database/sql"
	"fmt"

	"homewatch-policy/internal/models"

	"go.uber.org/zap"
)

// AlertTypesRepository 警报类型仓库
type AlertTypesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertTypesRepository 创建警报类型仓库
func NewAlertTypesRepository(db *sql.DB, logger *zap.Logger) *AlertTypesRepository {
	return &AlertTypesRepository{
		db:     db,
		logger: logger,
	}
}

// GetByName 根据类型名称获取警报类型
func (r *AlertTypesRepository) GetByName(ctx context.Context, typeName string) (*models.AlertType, error) {
	if typeName == "" {
		return nil, fmt.Errorf("type_name is required")
	}

	query := `
		SELECT alert_type_id, type_name, description, created_at
		FROM alert_types
		WHERE type_name = $1
	`

	var alertType models.AlertType
	var description sql.NullString

	err := r.db.QueryRowContext(ctx, query, typeName).Scan(
		&alertType.AlertTypeID,
		&alertType.TypeName,
		&description,
		&alertType.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAlertTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert type: %w", err)
	}

	if description.Valid {
		alertType.Description = &description.String
	}

	return &alertType, nil
}

// List 列出所有警报类型
func (r *AlertTypesRepository) List(ctx context.Context) ([]*models.AlertType, error) {
	query := `
		SELECT alert_type_id, type_name, description, created_at
		FROM alert_types
		ORDER BY type_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert types: %w", err)
	}
	defer rows.Close()

	var types []*models.AlertType
	for rows.Next() {
		var alertType models.AlertType
		var description sql.NullString

		if err := rows.Scan(&alertType.AlertTypeID, &alertType.TypeName, &description, &alertType.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert type: %w", err)
		}
		if description.Valid {
			alertType.Description = &description.String
		}

		types = append(types, &alertType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert types: %w", err)
	}

	return types, nil
}
