package registry

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Loader 模型工件加载器
// 激活事务提交前调用，失败则激活整体回滚
type Loader interface {
	Load(path string) error
}

// FileLoader 基于文件的加载器
// 打开并读取工件头部，确认文件可读且非空
type FileLoader struct {
	logger *zap.Logger
}

// NewFileLoader 创建文件加载器
func NewFileLoader(logger *zap.Logger) *FileLoader {
	return &FileLoader{logger: logger}
}

// Load 加载模型工件
func (l *FileLoader) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer f.Close()

	header := make([]byte, 16)
	n, err := f.Read(header)
	if err != nil {
		return fmt.Errorf("failed to read model artifact: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("model artifact is empty: %s", path)
	}

	l.logger.Info("model artifact loaded", zap.String("path", path))
	return nil
}
