package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/blockchain"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// ErrOrderNotFound 订单不存在
var ErrOrderNotFound = errors.New("order not found")

// 深度扫描因子
const (
	FactorTiming     = "timing"
	FactorValue      = "value"
	FactorBehavioral = "behavioral"
	FactorChain      = "chain_consistency"
)

// factorSummaries 因子越线时的结论与建议
var factorSummaries = map[string]struct {
	finding        string
	recommendation string
}{
	FactorTiming:     {"Suspicious timing patterns detected", "Manual review of shipping timeline"},
	FactorValue:      {"Unusual transaction value patterns", "Verify order value against market rates"},
	FactorBehavioral: {"Behavioral anomalies detected", "Review user transaction history"},
	FactorChain:      {"Blockchain inconsistencies found", "Verify smart contract interactions"},
}

// FactorResult 单因子评分
type FactorResult struct {
	Factor   string   `json:"factor"`
	Score    int      `json:"score"`
	Findings []string `json:"findings,omitempty"`
}

// DeepScanResult 付费深度扫描结果
type DeepScanResult struct {
	ScanID          string          `json:"scan_id"`
	OrderID         string          `json:"order_id"`
	Composite       int             `json:"composite_score"`
	Confidence      int             `json:"confidence"`
	Factors         []*FactorResult `json:"factors"`
	Findings        []string        `json:"findings,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	GeneratedAt     int64           `json:"generated_at"`
}

// DeepScanService 单订单四因子深度风险扫描
type DeepScanService struct {
	orderRepo  *repository.OrderRepository
	logRepo    *repository.AuditLogRepository
	scanner    EventScanner
	highValue  decimal.Decimal
	scanBlocks uint64
}

// NewDeepScanService 创建深度扫描服务
func NewDeepScanService(
	orderRepo *repository.OrderRepository,
	logRepo *repository.AuditLogRepository,
	scanner EventScanner,
	highValue decimal.Decimal,
	scanBlocks uint64,
) *DeepScanService {
	if highValue.IsZero() {
		highValue = decimal.NewFromInt(1000)
	}
	if scanBlocks == 0 {
		scanBlocks = 5000
	}
	return &DeepScanService{
		orderRepo:  orderRepo,
		logRepo:    logRepo,
		scanner:    scanner,
		highValue:  highValue,
		scanBlocks: scanBlocks,
	}
}

// PerformDeepScan 执行四因子扫描：时序、金额、行为、链一致性。
// 综合分为四因子等权平均。
func (s *DeepScanService) PerformDeepScan(ctx context.Context, orderID string) (*DeepScanResult, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	events, err := s.orderEvents(ctx, order)
	if err != nil {
		logger.Warn("deep scan chain lookup failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		events = nil
	}

	factors := []*FactorResult{
		s.timingFactor(events),
		s.valueFactor(order),
		s.behavioralFactor(ctx, order),
		s.chainFactor(order, events),
	}

	result := &DeepScanResult{
		ScanID:      uuid.NewString(),
		OrderID:     orderID,
		Factors:     factors,
		GeneratedAt: time.Now().UnixMilli(),
	}

	// 结论与建议按越线因子各记一条，细节留在因子内
	sum := 0
	for _, f := range factors {
		sum += f.Score
		if f.Score > 70 {
			summary := factorSummaries[f.Factor]
			result.Findings = append(result.Findings, summary.finding)
			result.Recommendations = append(result.Recommendations, summary.recommendation)
		}
	}
	result.Composite = int(math.Round(float64(sum) / float64(len(factors))))

	confidence := 100 - 10*len(result.Findings)
	if confidence > 95 {
		confidence = 95
	}
	if confidence < 60 {
		confidence = 60
	}
	result.Confidence = confidence

	log := &model.AuditLog{
		Category: model.CategoryFraudDetection,
		Severity: model.SeverityInfo,
		Metadata: model.JSONMap{
			"scan_id":   result.ScanID,
			"order_id":  orderID,
			"composite": result.Composite,
			"findings":  len(result.Findings),
		},
	}
	if result.Composite > 70 {
		log.Severity = model.SeverityWarning
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		logger.Warn("deep scan log write failed", zap.Error(err))
	}

	return result, nil
}

// orderEvents 取该订单在扫描窗口内的托管事件
func (s *DeepScanService) orderEvents(ctx context.Context, order *model.Order) ([]*blockchain.EscrowEvent, error) {
	if order.ChainOrderID == "" {
		return nil, nil
	}

	head, err := s.scanner.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(0)
	if head > s.scanBlocks {
		from = head - s.scanBlocks
	}

	all, err := s.scanner.ScanEvents(ctx, from, head)
	if err != nil {
		return nil, err
	}

	var events []*blockchain.EscrowEvent
	for _, ev := range all {
		if ev.OrderID == order.ChainOrderID {
			events = append(events, ev)
		}
	}
	return events, nil
}

// timingFactor 托管与发货间隔异常短视为可疑
func (s *DeepScanService) timingFactor(events []*blockchain.EscrowEvent) *FactorResult {
	result := &FactorResult{Factor: FactorTiming}

	var fundedAt, shippedAt int64
	for _, ev := range events {
		switch ev.EventName {
		case blockchain.EventOrderFunded:
			fundedAt = ev.Timestamp
		case blockchain.EventOrderShipped:
			shippedAt = ev.Timestamp
		}
	}
	if fundedAt == 0 || shippedAt == 0 || shippedAt < fundedAt {
		return result
	}

	delta := time.Duration(shippedAt-fundedAt) * time.Millisecond
	if delta < time.Hour {
		result.Score += 40
		result.Findings = append(result.Findings, "shipped less than 1h after funding")
	} else if delta < 6*time.Hour {
		result.Score += 20
		result.Findings = append(result.Findings, "shipped less than 6h after funding")
	}

	return clampFactor(result)
}

// valueFactor 金额异常：过大、过小、整数倍
func (s *DeepScanService) valueFactor(order *model.Order) *FactorResult {
	result := &FactorResult{Factor: FactorValue}

	if order.Amount.GreaterThan(s.highValue) {
		result.Score += 20
		result.Findings = append(result.Findings, "order value above high-value threshold")
	}
	if order.Amount.LessThan(decimal.NewFromInt(1)) {
		result.Score += 30
		result.Findings = append(result.Findings, "order value below 1")
	}

	hundred := decimal.NewFromInt(100)
	if order.Amount.GreaterThan(hundred) && order.Amount.Mod(hundred).IsZero() {
		result.Score += 15
		result.Findings = append(result.Findings, "suspiciously round order value")
	}

	return clampFactor(result)
}

// behavioralFactor 买家首单大额、短时高频下单、卖家高争议率
func (s *DeepScanService) behavioralFactor(ctx context.Context, order *model.Order) *FactorResult {
	result := &FactorResult{Factor: FactorBehavioral}

	buyerOrders, err := s.orderRepo.ListByWallet(ctx, order.Buyer, model.UserTypeBuyer)
	if err != nil {
		logger.Warn("behavioral factor buyer lookup failed", zap.Error(err))
		buyerOrders = nil
	}
	if len(buyerOrders) == 1 && order.Amount.GreaterThan(decimal.NewFromInt(500)) {
		result.Score += 25
		result.Findings = append(result.Findings, "first order from buyer above 500")
	}

	dayAgo := time.Now().UnixMilli() - 24*time.Hour.Milliseconds()
	recent, err := s.orderRepo.CountByBuyerSince(ctx, order.Buyer, dayAgo)
	if err == nil && recent > 5 {
		result.Score += 20
		result.Findings = append(result.Findings, "buyer placed more than 5 orders in 24h")
	}

	sellerOrders, err := s.orderRepo.ListByWallet(ctx, order.Seller, model.UserTypeSeller)
	if err == nil && len(sellerOrders) > 0 {
		disputed := 0
		for _, o := range sellerOrders {
			if o.Status == model.OrderStatusDisputed {
				disputed++
			}
		}
		if float64(disputed)/float64(len(sellerOrders)) > 0.20 {
			result.Score += 30
			result.Findings = append(result.Findings, "seller dispute ratio above 20%")
		}
	}

	return clampFactor(result)
}

// chainFactor 链上事件与后端状态一致性
func (s *DeepScanService) chainFactor(order *model.Order, events []*blockchain.EscrowEvent) *FactorResult {
	result := &FactorResult{Factor: FactorChain}

	if !hasExpectedEvent(order.Status, events) {
		result.Score += 40
		result.Findings = append(result.Findings, "expected escrow event for recorded status is absent")
	}

	if order.Status == model.OrderStatusCompleted {
		released := false
		for _, ev := range events {
			if ev.EventName == blockchain.EventFundsReleased {
				released = true
				break
			}
		}
		if !released {
			result.Score += 50
			result.Findings = append(result.Findings, "order completed without FundsReleased event")
		}
	}

	return clampFactor(result)
}

// hasExpectedEvent 后端所记状态对应的链上事件是否存在。
// CREATED (或未知状态) 不要求任何事件。
func hasExpectedEvent(status model.OrderStatus, events []*blockchain.EscrowEvent) bool {
	var want string
	switch status {
	case model.OrderStatusFunded:
		want = blockchain.EventOrderFunded
	case model.OrderStatusShipped:
		want = blockchain.EventOrderShipped
	case model.OrderStatusDelivered:
		want = blockchain.EventOrderDelivered
	case model.OrderStatusCompleted:
		want = blockchain.EventFundsReleased
	case model.OrderStatusDisputed:
		want = blockchain.EventDisputed
	case model.OrderStatusRefunded:
		want = blockchain.EventRefunded
	default:
		return true
	}
	for _, ev := range events {
		if ev.EventName == want {
			return true
		}
	}
	return false
}

// clampFactor 因子分截断到 [0,100]
func clampFactor(f *FactorResult) *FactorResult {
	if f.Score > 100 {
		f.Score = 100
	}
	if f.Score < 0 {
		f.Score = 0
	}
	return f
}
