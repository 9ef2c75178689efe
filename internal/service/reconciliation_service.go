package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/blockchain"
	"github.com/cronosmart/trust-monitor/internal/metrics"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// OrderMismatch 链上与后端状态不一致
type OrderMismatch struct {
	OrderID       string              `json:"order_id"`
	ChainOrderID  string              `json:"chain_order_id"`
	BackendStatus model.OrderStatus   `json:"backend_status"`
	ChainStatus   model.OrderStatus   `json:"chain_status"`
	Severity      model.AlertSeverity `json:"severity"`
	Events        []string            `json:"events"`
}

// ReconciliationService 订单账本与链上事件对账
type ReconciliationService struct {
	orderRepo   *repository.OrderRepository
	alertRepo   *repository.AuditAlertRepository
	scanner     EventScanner
	publisher   AlertPublisher
	reconBlocks uint64
	lookback    time.Duration
}

// NewReconciliationService 创建对账服务
func NewReconciliationService(
	orderRepo *repository.OrderRepository,
	alertRepo *repository.AuditAlertRepository,
	scanner EventScanner,
	publisher AlertPublisher,
	reconBlocks uint64,
	lookback time.Duration,
) *ReconciliationService {
	if reconBlocks == 0 {
		reconBlocks = 2000
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &ReconciliationService{
		orderRepo:   orderRepo,
		alertRepo:   alertRepo,
		scanner:     scanner,
		publisher:   publisher,
		reconBlocks: reconBlocks,
		lookback:    lookback,
	}
}

// DetectMismatches 对账：回看窗口内创建的订单按链上订单号
// 精确关联事件，推导链上状态并与后端状态比对。
// 只产生告警，不回写订单。
func (s *ReconciliationService) DetectMismatches(ctx context.Context) ([]*OrderMismatch, error) {
	head, err := s.scanner.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}

	from := uint64(0)
	if head > s.reconBlocks {
		from = head - s.reconBlocks
	}

	events, err := s.scanner.ScanEvents(ctx, from, head)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	eventsByOrder := make(map[string][]*blockchain.EscrowEvent)
	for _, ev := range events {
		eventsByOrder[ev.OrderID] = append(eventsByOrder[ev.OrderID], ev)
	}

	since := time.Now().Add(-s.lookback).UnixMilli()
	orders, err := s.orderRepo.ListCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var mismatches []*OrderMismatch
	for _, order := range orders {
		if order.ChainOrderID == "" {
			continue
		}
		// 窗口内无事件时推导为 CREATED：已推进的订单在链上
		// 毫无踪迹，正是伪造完成需要告警的情形
		orderEvents := eventsByOrder[order.ChainOrderID]

		chainStatus := deriveChainStatus(orderEvents)
		if chainStatus == order.Status {
			continue
		}

		mismatch := &OrderMismatch{
			OrderID:       order.ID,
			ChainOrderID:  order.ChainOrderID,
			BackendStatus: order.Status,
			ChainStatus:   chainStatus,
			Severity:      mismatchSeverity(order.Status, chainStatus),
		}
		for _, ev := range orderEvents {
			mismatch.Events = append(mismatch.Events, ev.EventName)
		}
		mismatches = append(mismatches, mismatch)
		metrics.MismatchesTotal.WithLabelValues(string(mismatch.Severity)).Inc()

		if err := s.raiseMismatchAlert(ctx, mismatch); err != nil {
			logger.Warn("mismatch alert failed",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	logger.Info("reconciliation completed",
		zap.Int("orders", len(orders)),
		zap.Int("chain_events", len(events)),
		zap.Int("mismatches", len(mismatches)))

	return mismatches, nil
}

// raiseMismatchAlert 创建不一致告警，同订单已有未处理告警时去重
func (s *ReconciliationService) raiseMismatchAlert(ctx context.Context, m *OrderMismatch) error {
	existing, err := s.alertRepo.FindOpenMismatch(ctx, m.OrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	alert := &model.AuditAlert{
		AlertID:  uuid.NewString(),
		Type:     model.AlertTypeMismatch,
		Title:    fmt.Sprintf("Order %s state mismatch", m.OrderID),
		Description: fmt.Sprintf("backend status %s but chain events indicate %s",
			m.BackendStatus, m.ChainStatus),
		Severity: m.Severity,
		OrderID:  m.OrderID,
		Metadata: model.JSONMap{
			"chain_order_id": m.ChainOrderID,
			"backend_status": string(m.BackendStatus),
			"chain_status":   string(m.ChainStatus),
			"events":         m.Events,
		},
		RecommendedAction: "Verify escrow contract state and correct the order record manually",
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return err
	}
	publishAlert(ctx, s.publisher, alert)
	return nil
}

// deriveChainStatus 按固定先后推导链上状态：
// funded → shipped → delivered → completed；disputed/refunded 为终态，
// 同时出现时以 refunded 为准 (争议以退款收场)。
func deriveChainStatus(events []*blockchain.EscrowEvent) model.OrderStatus {
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[ev.EventName] = true
	}

	if seen[blockchain.EventRefunded] {
		return model.OrderStatusRefunded
	}
	if seen[blockchain.EventDisputed] {
		return model.OrderStatusDisputed
	}
	if seen[blockchain.EventFundsReleased] {
		return model.OrderStatusCompleted
	}
	if seen[blockchain.EventOrderDelivered] {
		return model.OrderStatusDelivered
	}
	if seen[blockchain.EventOrderShipped] {
		return model.OrderStatusShipped
	}
	if seen[blockchain.EventOrderFunded] {
		return model.OrderStatusFunded
	}
	return model.OrderStatusCreated
}

// mismatchSeverity 不一致严重级别：后端已记终态 (COMPLETED/REFUNDED)
// 而链上不符为 high，后端已发货链上仅托管为 medium，其余为 low
func mismatchSeverity(backend, chain model.OrderStatus) model.AlertSeverity {
	if backend == model.OrderStatusCompleted && chain != model.OrderStatusCompleted {
		return model.AlertSeverityHigh
	}
	if backend == model.OrderStatusRefunded && chain != model.OrderStatusRefunded {
		return model.AlertSeverityHigh
	}
	if backend == model.OrderStatusShipped && chain == model.OrderStatusFunded {
		return model.AlertSeverityMedium
	}
	return model.AlertSeverityLow
}
