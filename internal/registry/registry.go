package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"homewatch-policy/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrActivationInProgress 已有激活流程在执行
	ErrActivationInProgress = errors.New("model activation already in progress")
	// ErrArtifactNotFound 模型工件文件不存在
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrModelActive 目标模型处于激活状态，不可删除
	ErrModelActive = errors.New("cannot delete active model")
	// ErrLastModel 注册表中最后一个模型不可删除
	ErrLastModel = errors.New("cannot delete the last registered model")
	// ErrModelNameTaken 模型名称已被占用
	ErrModelNameTaken = errors.New("model name already registered")
)

// ActivationFailedError 工件加载失败导致的激活失败
// 数据库状态已回滚，原激活模型保持不变
type ActivationFailedError struct {
	ModelID string
	Err     error
}

func (e *ActivationFailedError) Error() string {
	return fmt.Sprintf("failed to activate model %s: %v", e.ModelID, e.Err)
}

func (e *ActivationFailedError) Unwrap() error {
	return e.Err
}

// ModelStore 模型注册表依赖的仓库接口
type ModelStore interface {
	GetModel(ctx context.Context, modelID string) (*models.MLModel, error)
	GetModelByName(ctx context.Context, modelName string) (*models.MLModel, error)
	GetActiveModel(ctx context.Context) (*models.MLModel, error)
	ListModels(ctx context.Context) ([]*models.MLModel, error)
	CountModels(ctx context.Context) (int, error)
	CreateModel(ctx context.Context, model *models.MLModel) error
	DeleteModel(ctx context.Context, modelID string) error
	ActivateModelTx(ctx context.Context, modelID string, beforeCommit func() error) error
}

// ModelInfo 模型及其工件可用性
type ModelInfo struct {
	*models.MLModel
	ArtifactAvailable bool
}

// Registry 模型注册表
// 保证任意时刻至多一个模型激活，激活切换原子完成
type Registry struct {
	store     ModelStore
	loader    Loader
	modelsDir string
	logger    *zap.Logger

	activateMu sync.Mutex // 激活流程互斥，TryLock 失败即拒绝

	liveMu sync.RWMutex
	live   *models.MLModel // 当前加载到内存的激活模型
}

// New 创建模型注册表
func New(store ModelStore, loader Loader, modelsDir string, logger *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		loader:    loader,
		modelsDir: modelsDir,
		logger:    logger,
	}
}

// ArtifactPath 模型工件的完整路径
// 相对路径拼接到模型目录下
func (r *Registry) ArtifactPath(model *models.MLModel) string {
	if filepath.IsAbs(model.FilePath) {
		return model.FilePath
	}
	return filepath.Join(r.modelsDir, model.FilePath)
}

// Activate 激活指定模型
// 流程：工件存在性检查 → 单事务内全部停用并激活目标 → 提交前加载工件
// 任一步失败则数据库回滚，原激活模型不受影响
func (r *Registry) Activate(ctx context.Context, modelID string) (*models.MLModel, error) {
	if !r.activateMu.TryLock() {
		return nil, ErrActivationInProgress
	}
	defer r.activateMu.Unlock()

	model, err := r.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	path := r.ArtifactPath(model)
	if _, err := os.Stat(path); err != nil {
		r.logger.Error("model artifact missing, refusing activation",
			zap.String("model_id", modelID),
			zap.String("path", path))
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}

	err = r.store.ActivateModelTx(ctx, modelID, func() error {
		if err := r.loader.Load(path); err != nil {
			return &ActivationFailedError{ModelID: modelID, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	model.IsActive = true
	r.liveMu.Lock()
	r.live = model
	r.liveMu.Unlock()

	r.logger.Info("model activated",
		zap.String("model_id", model.ModelID),
		zap.String("model_name", model.ModelName))

	return model, nil
}

// Active 当前加载到内存的激活模型，没有时返回 nil
func (r *Registry) Active() *models.MLModel {
	r.liveMu.RLock()
	defer r.liveMu.RUnlock()
	if r.live == nil {
		return nil
	}
	copied := *r.live
	return &copied
}

// LoadActiveModel 启动时加载数据库标记的激活模型
// 没有激活模型不是错误，只记录告警
func (r *Registry) LoadActiveModel(ctx context.Context) error {
	model, err := r.store.GetActiveModel(ctx)
	if err != nil {
		return err
	}
	if model == nil {
		r.logger.Warn("no active model registered")
		return nil
	}

	path := r.ArtifactPath(model)
	if err := r.loader.Load(path); err != nil {
		return &ActivationFailedError{ModelID: model.ModelID, Err: err}
	}

	r.liveMu.Lock()
	r.live = model
	r.liveMu.Unlock()

	r.logger.Info("active model loaded on startup",
		zap.String("model_id", model.ModelID),
		zap.String("model_name", model.ModelName))

	return nil
}

// Register 注册新模型（名称唯一，工件必须已存在）
func (r *Registry) Register(ctx context.Context, model *models.MLModel) (*models.MLModel, error) {
	if model.ModelName == "" {
		return nil, fmt.Errorf("model_name is required")
	}
	if model.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}

	existing, err := r.store.GetModelByName(ctx, model.ModelName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNameTaken, model.ModelName)
	}

	if _, err := os.Stat(r.ArtifactPath(model)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, r.ArtifactPath(model))
	}

	model.ModelID = uuid.New().String()
	model.IsActive = false
	if err := r.store.CreateModel(ctx, model); err != nil {
		return nil, err
	}

	r.logger.Info("model registered",
		zap.String("model_id", model.ModelID),
		zap.String("model_name", model.ModelName))

	return model, nil
}

// Delete 删除模型
// 激活中的模型和最后一个模型不可删除
func (r *Registry) Delete(ctx context.Context, modelID string) error {
	model, err := r.store.GetModel(ctx, modelID)
	if err != nil {
		return err
	}
	if model.IsActive {
		return ErrModelActive
	}

	count, err := r.store.CountModels(ctx)
	if err != nil {
		return err
	}
	if count <= 1 {
		return ErrLastModel
	}

	if err := r.store.DeleteModel(ctx, modelID); err != nil {
		return err
	}

	r.logger.Info("model deleted", zap.String("model_id", modelID))
	return nil
}

// List 列出所有模型及其工件可用性
func (r *Registry) List(ctx context.Context) ([]*ModelInfo, error) {
	all, err := r.store.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*ModelInfo, 0, len(all))
	for _, model := range all {
		_, statErr := os.Stat(r.ArtifactPath(model))
		infos = append(infos, &ModelInfo{
			MLModel:           model,
			ArtifactAvailable: statErr == nil,
		})
	}

	return infos, nil
}

// Get 获取单个模型
func (r *Registry) Get(ctx context.Context, modelID string) (*models.MLModel, error) {
	return r.store.GetModel(ctx, modelID)
}
