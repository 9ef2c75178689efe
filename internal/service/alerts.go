package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/metrics"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// AlertPublisher 告警对外发布 (Kafka)，nil 时跳过
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *model.AuditAlert) error
}

// publishAlert 发布告警，失败只记日志不影响主流程
func publishAlert(ctx context.Context, publisher AlertPublisher, alert *model.AuditAlert) {
	metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()

	if publisher == nil {
		return
	}
	if err := publisher.PublishAlert(ctx, alert); err != nil {
		logger.Warn("alert publish failed",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err))
	}
}
