package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"homewatch-policy/internal/models"
	"homewatch-policy/internal/mqtt"
	"homewatch-policy/internal/policy"
	"homewatch-policy/internal/repository"

	"go.uber.org/zap"
)

// ClassifiedEvent 推理服务发布的分类结果消息
type ClassifiedEvent struct {
	EventID   string    `json:"event_id"`
	TenantID  string    `json:"tenant_id"`
	HouseID   string    `json:"house_id"`
	DeviceID  string    `json:"device_id"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Evaluator 策略评估接口
type Evaluator interface {
	Evaluate(ctx context.Context, input policy.EvaluationInput) (policy.Decision, error)
}

// EventMarker 事件处理标记接口
type EventMarker interface {
	MarkProcessed(ctx context.Context, tenantID, eventID string, classification *models.Classification) error
}

// Consumer 分类结果消费者
// 订阅分类主题，每条消息评估一次并把推理结果写回事件
type Consumer struct {
	client    *mqtt.Client
	topic     string
	qos       byte
	evaluator Evaluator
	events    EventMarker
	logger    *zap.Logger
}

// New 创建消费者
func New(client *mqtt.Client, topic string, qos byte, evaluator Evaluator, events EventMarker, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:    client,
		topic:     topic,
		qos:       qos,
		evaluator: evaluator,
		events:    events,
		logger:    logger,
	}
}

// Start 订阅分类主题
func (c *Consumer) Start() error {
	if err := c.client.Subscribe(c.topic, c.qos, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to classified topic: %w", err)
	}

	c.logger.Info("consumer subscribed", zap.String("topic", c.topic))
	return nil
}

// Stop 取消订阅
func (c *Consumer) Stop() error {
	return c.client.Unsubscribe(c.topic)
}

// HandleMessage 处理一条分类结果
// 消息格式错误记录后丢弃；基础设施错误返回，事件保持未处理待重投
func (c *Consumer) HandleMessage(topic string, payload []byte) error {
	var msg ClassifiedEvent
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("malformed classified event, dropping",
			zap.String("topic", topic),
			zap.Error(err))
		return nil
	}

	if msg.TenantID == "" || msg.HouseID == "" || msg.EventID == "" {
		c.logger.Error("classified event missing required fields, dropping",
			zap.String("topic", topic),
			zap.String("event_id", msg.EventID),
			zap.String("tenant_id", msg.TenantID))
		return nil
	}

	ctx := context.Background()
	classification := models.Classification{Label: msg.Label, Score: msg.Score}

	decision, err := c.evaluator.Evaluate(ctx, policy.EvaluationInput{
		TenantID:       msg.TenantID,
		HouseID:        msg.HouseID,
		DeviceID:       msg.DeviceID,
		EventID:        &msg.EventID,
		Classification: classification,
		ObservedAt:     msg.Timestamp,
	})
	if err != nil {
		c.logger.Error("evaluation failed, leaving event unprocessed",
			zap.String("event_id", msg.EventID),
			zap.String("tenant_id", msg.TenantID),
			zap.Error(err))
		return err
	}

	if err := c.events.MarkProcessed(ctx, msg.TenantID, msg.EventID, &classification); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			c.logger.Warn("classified event references unknown event row",
				zap.String("event_id", msg.EventID),
				zap.String("tenant_id", msg.TenantID))
			return nil
		}
		c.logger.Error("failed to mark event processed",
			zap.String("event_id", msg.EventID),
			zap.Error(err))
		return err
	}

	fields := []zap.Field{
		zap.String("event_id", msg.EventID),
		zap.String("tenant_id", msg.TenantID),
		zap.String("house_id", msg.HouseID),
		zap.String("label", msg.Label),
		zap.Float64("score", msg.Score),
		zap.String("outcome", string(decision.Outcome)),
	}
	if decision.Outcome == policy.OutcomeSkipped {
		fields = append(fields, zap.String("skip_reason", string(decision.Reason)))
	}
	if decision.Alert != nil {
		fields = append(fields, zap.String("alert_id", decision.Alert.AlertID))
	}
	c.logger.Info("classified event processed", fields...)

	return nil
}
