package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"homewatch-policy/internal/cache"
	"homewatch-policy/internal/config"
	"homewatch-policy/internal/consumer"
	"homewatch-policy/internal/database"
	"homewatch-policy/internal/lifecycle"
	"homewatch-policy/internal/mqtt"
	"homewatch-policy/internal/policy"
	"homewatch-policy/internal/registry"
	"homewatch-policy/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PolicyService 策略服务
// 组装数据库、缓存、MQTT、策略引擎、生命周期管理和模型注册表
type PolicyService struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	alerts     *repository.AlertsRepository
	events     *repository.EventsRepository
	alertTypes *repository.AlertTypesRepository

	engine    *policy.Engine
	lifecycle *lifecycle.Manager
	registry  *registry.Registry
	watcher   *registry.Watcher
	consumer  *consumer.Consumer

	watcherCancel context.CancelFunc
}

// NewPolicyService 创建策略服务
func NewPolicyService(cfg *config.Config, logger *zap.Logger) (*PolicyService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := cache.NewRedisClient(&cfg.Redis)
	if err := cache.Ping(context.Background(), redisClient); err != nil {
		// Redis 只承载规则缓存，不可用时降级为直接查库
		logger.Warn("redis unavailable, rule cache disabled", zap.Error(err))
		_ = cache.Close(redisClient)
		redisClient = nil
	}

	mqttClient, err := mqtt.NewClient(&cfg.MQTT)
	if err != nil {
		_ = database.Close(db)
		_ = cache.Close(redisClient)
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	alertsRepo := repository.NewAlertsRepository(db, logger)
	eventsRepo := repository.NewEventsRepository(db, logger)
	rulesRepo := repository.NewAlertRulesRepository(db, logger)
	typesRepo := repository.NewAlertTypesRepository(db, logger)
	modelsRepo := repository.NewMLModelsRepository(db, logger)

	var ruleCache *policy.RuleCache
	if redisClient != nil {
		ruleCache = policy.NewRuleCache(redisClient,
			time.Duration(cfg.Policy.RuleCacheTTLSeconds)*time.Second, logger)
	}

	resolver := policy.NewRuleResolver(rulesRepo, ruleCache, policy.Defaults{
		ConfidenceThreshold:      cfg.Policy.DefaultThreshold,
		AggregationWindowSeconds: cfg.Policy.AggregationWindowSeconds,
		MinEventsForEscalation:   cfg.Policy.MinEventsForEscalation,
	}, logger)

	locker := policy.NewRepoLocker(repository.NewKeyedLocker(db), alertsRepo)
	engine := policy.NewEngine(cfg.Policy.LabelAlertTypes, typesRepo, resolver, eventsRepo, locker, logger)

	modelRegistry := registry.New(modelsRepo, registry.NewFileLoader(logger), cfg.Registry.ModelsDir, logger)

	var watcher *registry.Watcher
	if cfg.Registry.WatchArtifacts {
		watcher, err = registry.NewWatcher(modelRegistry, cfg.Registry.ModelsDir, logger)
		if err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
			watcher = nil
		}
	}

	return &PolicyService{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		alerts:      alertsRepo,
		events:      eventsRepo,
		alertTypes:  typesRepo,
		engine:      engine,
		lifecycle:   lifecycle.NewManager(alertsRepo, logger),
		registry:    modelRegistry,
		watcher:     watcher,
		consumer:    consumer.New(mqttClient, cfg.MQTT.ClassifiedTopic, cfg.MQTT.QoS, engine, eventsRepo, logger),
	}, nil
}

// Start 启动服务
func (s *PolicyService) Start(ctx context.Context) error {
	if err := s.registry.LoadActiveModel(ctx); err != nil {
		return fmt.Errorf("failed to load active model: %w", err)
	}

	if s.watcher != nil {
		watcherCtx, cancel := context.WithCancel(context.Background())
		s.watcherCancel = cancel
		go s.watcher.Start(watcherCtx)
	}

	if err := s.consumer.Start(); err != nil {
		return err
	}

	s.logger.Info("policy service started",
		zap.String("classified_topic", s.cfg.MQTT.ClassifiedTopic),
		zap.String("models_dir", s.cfg.Registry.ModelsDir))

	return nil
}

// Stop 停止服务
func (s *PolicyService) Stop(ctx context.Context) error {
	if err := s.consumer.Stop(); err != nil {
		s.logger.Error("failed to stop consumer", zap.Error(err))
	}

	if s.watcherCancel != nil {
		s.watcherCancel()
	}

	s.mqttClient.Disconnect()

	if err := cache.Close(s.redisClient); err != nil {
		s.logger.Error("failed to close redis client", zap.Error(err))
	}

	if err := database.Close(s.db); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Engine 策略引擎
func (s *PolicyService) Engine() *policy.Engine {
	return s.engine
}

// Lifecycle 生命周期管理器
func (s *PolicyService) Lifecycle() *lifecycle.Manager {
	return s.lifecycle
}

// Registry 模型注册表
func (s *PolicyService) Registry() *registry.Registry {
	return s.registry
}

// Alerts 警报仓库
func (s *PolicyService) Alerts() *repository.AlertsRepository {
	return s.alerts
}

// AlertTypes 警报类型仓库
func (s *PolicyService) AlertTypes() *repository.AlertTypesRepository {
	return s.alertTypes
}
