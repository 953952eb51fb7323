package repository

import (
	"context"
	"database/sql"
	"fmt"

	"homewatch-policy/internal/models"

	"go.uber.org/zap"
)

// MLModelsRepository 模型注册表仓库
type MLModelsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMLModelsRepository 创建模型仓库
func NewMLModelsRepository(db *sql.DB, logger *zap.Logger) *MLModelsRepository {
	return &MLModelsRepository{
		db:     db,
		logger: logger,
	}
}

const mlModelColumns = `
	model_id,
	model_name,
	version,
	file_path,
	description,
	model_type,
	accuracy,
	is_active,
	created_at,
	updated_at
`

// GetModel 根据 model_id 获取模型
func (r *MLModelsRepository) GetModel(ctx context.Context, modelID string) (*models.MLModel, error) {
	if modelID == "" {
		return nil, fmt.Errorf("model_id is required")
	}

	query := `SELECT ` + mlModelColumns + ` FROM ml_models WHERE model_id = $1`

	model, err := scanMLModel(r.db.QueryRowContext(ctx, query, modelID))
	if err == sql.ErrNoRows {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	return model, nil
}

// GetModelByName 根据名称获取模型（注册时做唯一性检查）
// 未找到时返回 (nil, nil)
func (r *MLModelsRepository) GetModelByName(ctx context.Context, modelName string) (*models.MLModel, error) {
	query := `SELECT ` + mlModelColumns + ` FROM ml_models WHERE model_name = $1`

	model, err := scanMLModel(r.db.QueryRowContext(ctx, query, modelName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model by name: %w", err)
	}

	return model, nil
}

// GetActiveModel 获取当前激活模型，没有时返回 (nil, nil)
func (r *MLModelsRepository) GetActiveModel(ctx context.Context) (*models.MLModel, error) {
	query := `SELECT ` + mlModelColumns + ` FROM ml_models WHERE is_active = TRUE LIMIT 1`

	model, err := scanMLModel(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active model: %w", err)
	}

	return model, nil
}

// ListModels 列出所有模型（按创建时间倒序）
func (r *MLModelsRepository) ListModels(ctx context.Context) ([]*models.MLModel, error) {
	query := `SELECT ` + mlModelColumns + ` FROM ml_models ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var result []*models.MLModel
	for rows.Next() {
		model, err := scanMLModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		result = append(result, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", err)
	}

	return result, nil
}

// CountModels 统计已注册模型数量
func (r *MLModelsRepository) CountModels(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ml_models`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count models: %w", err)
	}
	return count, nil
}

// CreateModel 注册新模型
func (r *MLModelsRepository) CreateModel(ctx context.Context, model *models.MLModel) error {
	if model.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}
	if model.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}

	query := `
		INSERT INTO ml_models (
			model_id,
			model_name,
			version,
			file_path,
			description,
			model_type,
			accuracy,
			is_active,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		model.ModelID,
		model.ModelName,
		model.Version,
		model.FilePath,
		model.Description,
		model.ModelType,
		model.Accuracy,
		model.IsActive,
	).Scan(&model.CreatedAt, &model.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	return nil
}

// DeleteModel 删除模型
func (r *MLModelsRepository) DeleteModel(ctx context.Context, modelID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ml_models WHERE model_id = $1`, modelID)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrModelNotFound
	}

	return nil
}

// ActivateModelTx 单事务内切换激活模型
// 先全部停用，再激活目标模型；beforeCommit 在提交前执行（用于加载工件），
// 失败则整体回滚，数据库里仍是原激活模型
func (r *MLModelsRepository) ActivateModelTx(ctx context.Context, modelID string, beforeCommit func() error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ml_models SET is_active = FALSE, updated_at = NOW() WHERE is_active = TRUE`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to deactivate models: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE ml_models SET is_active = TRUE, updated_at = NOW() WHERE model_id = $1`, modelID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to activate model: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return ErrModelNotFound
	}

	if beforeCommit != nil {
		if err := beforeCommit(); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	return nil
}

func scanMLModel(row scanner) (*models.MLModel, error) {
	var model models.MLModel
	var version, description, modelType sql.NullString
	var accuracy sql.NullFloat64

	err := row.Scan(
		&model.ModelID,
		&model.ModelName,
		&version,
		&model.FilePath,
		&description,
		&modelType,
		&accuracy,
		&model.IsActive,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if version.Valid {
		model.Version = &version.String
	}
	if description.Valid {
		model.Description = &description.String
	}
	if modelType.Valid {
		model.ModelType = &modelType.String
	}
	if accuracy.Valid {
		model.Accuracy = &accuracy.Float64
	}

	return &model, nil
}
