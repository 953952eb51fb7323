package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 模型工件目录监视器
// 工件被删除或替换时记录日志，便于在激活前发现目录被外部改动
type Watcher struct {
	watcher  *fsnotify.Watcher
	registry *Registry
	logger   *zap.Logger
}

// NewWatcher 创建工件目录监视器
func NewWatcher(registry *Registry, modelsDir string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact watcher: %w", err)
	}

	if err := fw.Add(modelsDir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch models dir %s: %w", modelsDir, err)
	}

	return &Watcher{
		watcher:  fw,
		registry: registry,
		logger:   logger,
	}, nil
}

// Start 启动监视循环，ctx 取消后退出
func (w *Watcher) Start(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("artifact watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.logger.Warn("model artifact removed from models dir",
			zap.String("artifact", name))

		// 激活模型的工件被动了要提级告警
		if active := w.registry.Active(); active != nil {
			if filepath.Base(w.registry.ArtifactPath(active)) == name {
				w.logger.Error("artifact of active model removed",
					zap.String("model_id", active.ModelID),
					zap.String("artifact", name))
			}
		}

	case event.Op.Has(fsnotify.Create):
		w.logger.Info("model artifact added to models dir",
			zap.String("artifact", name))
	}
}
