package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronosmart/trust-monitor/internal/blockchain"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
)

func TestDeriveChainStatus(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   model.OrderStatus
	}{
		{"no events", nil, model.OrderStatusCreated},
		{"funded only", []string{blockchain.EventOrderFunded}, model.OrderStatusFunded},
		{"funded and shipped", []string{blockchain.EventOrderFunded, blockchain.EventOrderShipped}, model.OrderStatusShipped},
		{"full flow", []string{blockchain.EventOrderFunded, blockchain.EventOrderShipped, blockchain.EventOrderDelivered, blockchain.EventFundsReleased}, model.OrderStatusCompleted},
		{"disputed wins over progress", []string{blockchain.EventOrderFunded, blockchain.EventOrderShipped, blockchain.EventDisputed}, model.OrderStatusDisputed},
		{"refund wins over dispute", []string{blockchain.EventDisputed, blockchain.EventRefunded}, model.OrderStatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []*blockchain.EscrowEvent
			for _, name := range tt.events {
				events = append(events, &blockchain.EscrowEvent{EventName: name})
			}
			assert.Equal(t, tt.want, deriveChainStatus(events))
		})
	}
}

func TestMismatchSeverity(t *testing.T) {
	// 后端终态与链上不符为 high
	assert.Equal(t, model.AlertSeverityHigh, mismatchSeverity(model.OrderStatusCompleted, model.OrderStatusRefunded))
	assert.Equal(t, model.AlertSeverityHigh, mismatchSeverity(model.OrderStatusCompleted, model.OrderStatusCreated))
	assert.Equal(t, model.AlertSeverityHigh, mismatchSeverity(model.OrderStatusRefunded, model.OrderStatusShipped))
	// 已发货但链上仅托管为 medium
	assert.Equal(t, model.AlertSeverityMedium, mismatchSeverity(model.OrderStatusShipped, model.OrderStatusFunded))
	// 其余一律 low，链上单边终态不升级
	assert.Equal(t, model.AlertSeverityLow, mismatchSeverity(model.OrderStatusFunded, model.OrderStatusCompleted))
	assert.Equal(t, model.AlertSeverityLow, mismatchSeverity(model.OrderStatusFunded, model.OrderStatusShipped))
	assert.Equal(t, model.AlertSeverityLow, mismatchSeverity(model.OrderStatusDelivered, model.OrderStatusShipped))
}

func TestReconciliationService_DetectMismatches(t *testing.T) {
	db := setupDB(t)
	orderRepo := repository.NewOrderRepository(db)
	alertRepo := repository.NewAuditAlertRepository(db)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	orders := []*model.Order{
		// 后端 COMPLETED 但链上只到 Refunded → high
		{ID: "o1", ChainOrderID: "0xaaa", Buyer: "0xb", Seller: "0xs", Amount: decimal.NewFromInt(100), Status: model.OrderStatusCompleted, CreatedAt: now, UpdatedAt: now},
		// 状态一致
		{ID: "o2", ChainOrderID: "0xbbb", Buyer: "0xb", Seller: "0xs", Amount: decimal.NewFromInt(50), Status: model.OrderStatusFunded, CreatedAt: now, UpdatedAt: now},
		// 无链上订单号，跳过
		{ID: "o3", ChainOrderID: "", Buyer: "0xb", Seller: "0xs", Amount: decimal.NewFromInt(10), Status: model.OrderStatusShipped, CreatedAt: now, UpdatedAt: now},
	}
	for _, o := range orders {
		require.NoError(t, db.Create(o).Error)
	}

	scanner := &fakeScanner{
		head: 5000,
		events: []*blockchain.EscrowEvent{
			{EventName: blockchain.EventOrderFunded, OrderID: "0xaaa", BlockNumber: 10},
			{EventName: blockchain.EventRefunded, OrderID: "0xaaa", BlockNumber: 20},
			{EventName: blockchain.EventOrderFunded, OrderID: "0xbbb", BlockNumber: 15},
		},
	}
	published := &capturedAlerts{}
	svc := NewReconciliationService(orderRepo, alertRepo, scanner, published, 2000, 24*time.Hour)

	mismatches, err := svc.DetectMismatches(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "o1", mismatches[0].OrderID)
	assert.Equal(t, model.OrderStatusCompleted, mismatches[0].BackendStatus)
	assert.Equal(t, model.OrderStatusRefunded, mismatches[0].ChainStatus)
	assert.Equal(t, model.AlertSeverityHigh, mismatches[0].Severity)

	alerts, err := alertRepo.List(ctx, &repository.AlertQuery{Status: model.AlertStatusOpen})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertTypeMismatch, alerts[0].Type)
	assert.Equal(t, "o1", alerts[0].OrderID)
	require.Len(t, published.alerts, 1)

	// 重复对账不产生第二条告警
	_, err = svc.DetectMismatches(ctx)
	require.NoError(t, err)
	alerts, err = alertRepo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestReconciliationService_CompletedOrderWithoutChainEvents(t *testing.T) {
	db := setupDB(t)
	orderRepo := repository.NewOrderRepository(db)
	alertRepo := repository.NewAuditAlertRepository(db)
	ctx := context.Background()

	// 后端声称完成，链上整个窗口没有任何事件
	now := time.Now().UnixMilli()
	require.NoError(t, db.Create(&model.Order{
		ID: "ghost", ChainOrderID: "0xfff", Buyer: "0xb", Seller: "0xs",
		Amount: decimal.NewFromInt(200), Status: model.OrderStatusCompleted,
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	scanner := &fakeScanner{head: 5000}
	published := &capturedAlerts{}
	svc := NewReconciliationService(orderRepo, alertRepo, scanner, published, 2000, 24*time.Hour)

	mismatches, err := svc.DetectMismatches(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.OrderStatusCreated, mismatches[0].ChainStatus)
	assert.Equal(t, model.AlertSeverityHigh, mismatches[0].Severity)

	alerts, err := alertRepo.List(ctx, &repository.AlertQuery{Status: model.AlertStatusOpen})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "ghost", alerts[0].OrderID)
	assert.Len(t, published.alerts, 1)
}

func TestReconciliationService_ScanFailure(t *testing.T) {
	db := setupDB(t)
	orderRepo := repository.NewOrderRepository(db)
	alertRepo := repository.NewAuditAlertRepository(db)

	scanner := &fakeScanner{head: 100, scanErr: assert.AnError}
	svc := NewReconciliationService(orderRepo, alertRepo, scanner, nil, 2000, time.Hour)

	_, err := svc.DetectMismatches(context.Background())
	assert.Error(t, err)
}
