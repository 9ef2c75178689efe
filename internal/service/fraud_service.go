package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/metrics"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
	"github.com/cronosmart/trust-monitor/internal/rules"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// 欺诈模式标签
const (
	PatternMultipleDisputes = "multiple_disputes"
	PatternRapidRefunds     = "rapid_refunds"
)

// FraudPattern 聚合扫描发现的欺诈模式
type FraudPattern struct {
	Wallet      string `json:"wallet"`
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	Confidence  int    `json:"confidence"`
	RiskScore   int    `json:"risk_score"`
}

// ScoreCache 评分缓存能力，nil 时跳过缓存
type ScoreCache interface {
	Get(ctx context.Context, wallet string) (*model.RiskScore, bool, error)
	Set(ctx context.Context, score *model.RiskScore) error
}

// FraudService 钱包欺诈风险评估
type FraudService struct {
	orderRepo *repository.OrderRepository
	scoreRepo *repository.RiskScoreRepository
	alertRepo *repository.AuditAlertRepository
	logRepo   *repository.AuditLogRepository
	cache     ScoreCache
	publisher AlertPublisher
	table     *rules.Table
	highValue decimal.Decimal
}

// NewFraudService 创建欺诈评估服务
func NewFraudService(
	orderRepo *repository.OrderRepository,
	scoreRepo *repository.RiskScoreRepository,
	alertRepo *repository.AuditAlertRepository,
	logRepo *repository.AuditLogRepository,
	cache ScoreCache,
	publisher AlertPublisher,
	highValue decimal.Decimal,
) *FraudService {
	if highValue.IsZero() {
		highValue = decimal.NewFromInt(1000)
	}
	return &FraudService{
		orderRepo: orderRepo,
		scoreRepo: scoreRepo,
		alertRepo: alertRepo,
		logRepo:   logRepo,
		cache:     cache,
		publisher: publisher,
		table:     rules.TableV1(),
		highValue: highValue,
	}
}

// ScoreWallet 评估钱包风险。同一输入重复调用结果一致，
// 评分写入为原子 upsert，旁路写缓存。
func (s *FraudService) ScoreWallet(ctx context.Context, wallet string, role model.UserType) (*model.RiskScore, error) {
	wallet = strings.ToLower(wallet)

	orders, err := s.orderRepo.ListByWallet(ctx, wallet, role)
	if err != nil {
		return nil, fmt.Errorf("list wallet orders: %w", err)
	}

	factors := s.computeFactors(orders)
	eval := s.table.Evaluate(factors)

	score := &model.RiskScore{
		WalletAddress:  wallet,
		UserType:       role,
		RiskScore:      eval.Score,
		RiskLevel:      model.LevelForScore(eval.Score),
		DisputeRate:    factors.DisputeRate,
		RefundRate:     factors.RefundRate,
		OrderCount:     factors.OrderCount,
		AvgOrderValue:  factors.AvgOrderValue,
		AccountAgeDays: factors.AccountAgeDays,
		Patterns:       model.StringList(eval.Patterns),
		Flagged:        eval.Score >= model.FlagThreshold,
		LastUpdated:    time.Now().UnixMilli(),
	}

	if err := s.scoreRepo.Upsert(ctx, score); err != nil {
		return nil, fmt.Errorf("upsert risk score: %w", err)
	}
	metrics.WalletsScoredTotal.WithLabelValues(strconv.FormatBool(score.Flagged)).Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, score); err != nil {
			logger.Warn("score cache write failed",
				zap.String("wallet", wallet),
				zap.Error(err))
		}
	}

	if score.Flagged {
		if err := s.raiseFraudAlert(ctx, score); err != nil {
			logger.Warn("fraud alert failed",
				zap.String("wallet", wallet),
				zap.Error(err))
		}
	}

	return score, nil
}

// GetScore 读取评分，优先走缓存
func (s *FraudService) GetScore(ctx context.Context, wallet string) (*model.RiskScore, error) {
	wallet = strings.ToLower(wallet)

	if s.cache != nil {
		if cached, hit, err := s.cache.Get(ctx, wallet); err == nil && hit {
			return cached, nil
		}
	}
	return s.scoreRepo.GetByWallet(ctx, wallet)
}

// computeFactors 从订单历史统计评分因子
func (s *FraudService) computeFactors(orders []*model.Order) *rules.WalletFactors {
	factors := &rules.WalletFactors{
		OrderCount:         len(orders),
		HighValueThreshold: s.highValue,
	}
	if len(orders) == 0 {
		return factors
	}

	now := time.Now().UnixMilli()
	weekAgo := now - 7*24*time.Hour.Milliseconds()

	var disputed, refunded int
	total := decimal.Zero
	earliest := orders[0].CreatedAt
	for _, o := range orders {
		switch o.Status {
		case model.OrderStatusDisputed:
			disputed++
		case model.OrderStatusRefunded:
			refunded++
		}
		total = total.Add(o.Amount)
		if o.CreatedAt < earliest {
			earliest = o.CreatedAt
		}
		if o.CreatedAt >= weekAgo {
			factors.OrdersLast7d++
		}
	}

	count := float64(len(orders))
	factors.DisputeRate = float64(disputed) / count
	factors.RefundRate = float64(refunded) / count
	factors.AvgOrderValue = total.Div(decimal.NewFromInt(int64(len(orders))))
	factors.AccountAgeDays = int((now - earliest) / (24 * time.Hour.Milliseconds()))

	return factors
}

// raiseFraudAlert 被标记钱包产生欺诈告警，未处理告警去重
func (s *FraudService) raiseFraudAlert(ctx context.Context, score *model.RiskScore) error {
	existing, err := s.alertRepo.FindOpenFraud(ctx, score.WalletAddress)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	severity := model.AlertSeverityHigh
	if score.RiskScore >= 80 {
		severity = model.AlertSeverityCritical
	}

	alert := &model.AuditAlert{
		AlertID: uuid.NewString(),
		Type:    model.AlertTypeFraud,
		Title:   fmt.Sprintf("High risk wallet %s", score.WalletAddress),
		Description: fmt.Sprintf("risk score %d (%s), patterns: %s",
			score.RiskScore, score.RiskLevel, strings.Join(score.Patterns, ", ")),
		Severity:      severity,
		WalletAddress: score.WalletAddress,
		Metadata: model.JSONMap{
			"risk_score":   score.RiskScore,
			"risk_level":   string(score.RiskLevel),
			"patterns":     []string(score.Patterns),
			"dispute_rate": score.DisputeRate,
			"refund_rate":  score.RefundRate,
			"order_count":  score.OrderCount,
		},
		RecommendedAction: "Review wallet activity and consider restricting marketplace access",
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return err
	}
	publishAlert(ctx, s.publisher, alert)
	return nil
}

// DetectFraudPatterns 订单账本聚合扫描：高频争议与快速退款，
// 命中的钱包重新评分，写一条 fraud_detection 汇总日志
func (s *FraudService) DetectFraudPatterns(ctx context.Context) ([]*FraudPattern, error) {
	var patterns []*FraudPattern

	disputed, err := s.orderRepo.WalletsWithDisputes(ctx, 3)
	if err != nil {
		return nil, fmt.Errorf("dispute sweep: %w", err)
	}
	for _, agg := range disputed {
		score, err := s.ScoreWallet(ctx, agg.Wallet, model.UserTypeBuyer)
		if err != nil {
			logger.Warn("rescore failed",
				zap.String("wallet", agg.Wallet),
				zap.Error(err))
			continue
		}
		patterns = append(patterns, &FraudPattern{
			Wallet:      agg.Wallet,
			Pattern:     PatternMultipleDisputes,
			Description: fmt.Sprintf("%d disputed orders", agg.Count),
			Confidence:  80,
			RiskScore:   score.RiskScore,
		})
	}

	twoDays := 2 * 24 * time.Hour.Milliseconds()
	refunded, err := s.orderRepo.WalletsWithRapidRefunds(ctx, 2, twoDays)
	if err != nil {
		return nil, fmt.Errorf("refund sweep: %w", err)
	}
	for _, agg := range refunded {
		score, err := s.ScoreWallet(ctx, agg.Wallet, model.UserTypeBuyer)
		if err != nil {
			logger.Warn("rescore failed",
				zap.String("wallet", agg.Wallet),
				zap.Error(err))
			continue
		}
		patterns = append(patterns, &FraudPattern{
			Wallet:      agg.Wallet,
			Pattern:     PatternRapidRefunds,
			Description: fmt.Sprintf("%d refunds resolved unusually fast", agg.Count),
			Confidence:  75,
			RiskScore:   score.RiskScore,
		})
	}

	log := &model.AuditLog{
		Category: model.CategoryFraudDetection,
		Severity: model.SeverityInfo,
		Metadata: model.JSONMap{
			"patterns_found":  len(patterns),
			"dispute_wallets": len(disputed),
			"refund_wallets":  len(refunded),
		},
	}
	if len(patterns) > 0 {
		log.Severity = model.SeverityWarning
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		logger.Warn("fraud sweep log write failed", zap.Error(err))
	}

	return patterns, nil
}
