package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`

	// 分类结果投递主题，格式 homewatch/classified/{tenant_id}
	ClassifiedTopic string `yaml:"classified_topic"`
}

// PolicyConfig 策略引擎配置（系统默认值，可被租户级 AlertRule 覆盖）
type PolicyConfig struct {
	DefaultThreshold         float64 `yaml:"default_threshold"`          // 默认置信度阈值
	AggregationWindowSeconds int     `yaml:"aggregation_window_seconds"` // 聚合窗口（秒）
	MinEventsForEscalation   int     `yaml:"min_events_for_escalation"`  // 升级所需最小事件数
	RuleCacheTTLSeconds      int     `yaml:"rule_cache_ttl_seconds"`     // 生效规则缓存 TTL（秒）

	// 分类器 label → 报警类型名称映射（注入式配置，新 label 无需重新编译）
	LabelAlertTypes map[string]string `yaml:"label_alert_types"`
}

// RegistryConfig 模型注册表配置
type RegistryConfig struct {
	ModelsDir      string `yaml:"models_dir"`      // 模型工件目录
	WatchArtifacts bool   `yaml:"watch_artifacts"` // 是否监视工件目录变化
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 策略服务配置
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Policy   PolicyConfig   `yaml:"policy"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

// Load 加载配置
// 优先级：默认值 < CONFIG_FILE 指向的 YAML 文件 < 环境变量
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.loadFromEnv()

	if cfg.Policy.DefaultThreshold < 0 || cfg.Policy.DefaultThreshold > 1 {
		return nil, fmt.Errorf("default threshold must be in [0,1], got %v", cfg.Policy.DefaultThreshold)
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "homewatch"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 25
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "homewatch-policy"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ClassifiedTopic = "homewatch/classified/+"

	cfg.Policy.DefaultThreshold = 0.70
	cfg.Policy.AggregationWindowSeconds = 60
	cfg.Policy.MinEventsForEscalation = 1
	cfg.Policy.RuleCacheTTLSeconds = 30
	cfg.Policy.LabelAlertTypes = map[string]string{
		"distress":   "distress",
		"inactivity": "inactivity",
		"alarm":      "alarm",
		"fall":       "fall",
	}

	cfg.Registry.ModelsDir = "./models"
	cfg.Registry.WatchArtifacts = true

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

func (c *Config) loadFromEnv() {
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.ClassifiedTopic = getEnv("MQTT_CLASSIFIED_TOPIC", c.MQTT.ClassifiedTopic)

	c.Policy.DefaultThreshold = getEnvFloat("POLICY_THRESHOLD", c.Policy.DefaultThreshold)
	c.Policy.AggregationWindowSeconds = getEnvInt("POLICY_AGGREGATION_WINDOW_SECONDS", c.Policy.AggregationWindowSeconds)
	c.Policy.MinEventsForEscalation = getEnvInt("POLICY_MIN_EVENTS_FOR_ESCALATION", c.Policy.MinEventsForEscalation)
	c.Policy.RuleCacheTTLSeconds = getEnvInt("POLICY_RULE_CACHE_TTL_SECONDS", c.Policy.RuleCacheTTLSeconds)

	c.Registry.ModelsDir = getEnv("MODELS_DIR", c.Registry.ModelsDir)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
