// Package kafka 负责告警消息对外发布
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// TopicAuditAlerts 审计告警主题
const TopicAuditAlerts = "audit-alerts"

// AlertProducer 审计告警 Kafka 生产者
type AlertProducer struct {
	producer sarama.SyncProducer
}

// NewAlertProducer 创建告警生产者
func NewAlertProducer(brokers []string, clientID string) (*AlertProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewRoundRobinPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &AlertProducer{producer: producer}, nil
}

// Close 关闭生产者
func (p *AlertProducer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// alertMessage 告警消息体
type alertMessage struct {
	AlertID       string              `json:"alert_id"`
	Type          model.AlertType     `json:"type"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Severity      model.AlertSeverity `json:"severity"`
	OrderID       string              `json:"order_id,omitempty"`
	WalletAddress string              `json:"wallet_address,omitempty"`
	Metadata      model.JSONMap       `json:"metadata,omitempty"`
	CreatedAt     int64               `json:"created_at"`
}

// PublishAlert 发布告警消息
func (p *AlertProducer) PublishAlert(ctx context.Context, alert *model.AuditAlert) error {
	data, err := json.Marshal(&alertMessage{
		AlertID:       alert.AlertID,
		Type:          alert.Type,
		Title:         alert.Title,
		Description:   alert.Description,
		Severity:      alert.Severity,
		OrderID:       alert.OrderID,
		WalletAddress: alert.WalletAddress,
		Metadata:      alert.Metadata,
		CreatedAt:     alert.CreatedAt,
	})
	if err != nil {
		return err
	}

	key := alert.OrderID
	if key == "" {
		key = alert.WalletAddress
	}
	if key == "" {
		key = alert.AlertID
	}

	msg := &sarama.ProducerMessage{
		Topic:     TopicAuditAlerts,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(alert.Type)},
			{Key: []byte("severity"), Value: []byte(alert.Severity)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to publish audit alert",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err))
		return err
	}

	logger.Debug("audit alert published",
		zap.String("alert_id", alert.AlertID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}
