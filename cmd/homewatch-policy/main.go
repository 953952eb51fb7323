package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"homewatch-policy/internal/config"
	"homewatch-policy/internal/logger"
	"homewatch-policy/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format, "homewatch-policy")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting homewatch-policy service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("classified_topic", cfg.MQTT.ClassifiedTopic),
	)

	// 创建服务
	policyService, err := service.NewPolicyService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create policy service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := policyService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start policy service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	if err := policyService.Stop(ctx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
