package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
)

// TrustReport 滚动 24 小时监控报告
type TrustReport struct {
	ReportID        string                        `json:"report_id"`
	PeriodStart     int64                         `json:"period_start"`
	PeriodEnd       int64                         `json:"period_end"`
	UptimePercent   float64                       `json:"uptime_percent"`
	AvgLatencyMs    float64                       `json:"avg_latency_ms"`
	ErrorRate       float64                       `json:"error_rate_percent"`
	TotalProbes     int                           `json:"total_probes"`
	AlertCounts     map[model.AlertSeverity]int64 `json:"alert_counts"`
	FlaggedWallets  []*model.RiskScore            `json:"flagged_wallets"`
	Recommendations []string                      `json:"recommendations"`
	GeneratedAt     int64                         `json:"generated_at"`
}

// ReportService 监控报告生成
type ReportService struct {
	logRepo   *repository.AuditLogRepository
	alertRepo *repository.AuditAlertRepository
	scoreRepo *repository.RiskScoreRepository
}

// NewReportService 创建报告服务
func NewReportService(
	logRepo *repository.AuditLogRepository,
	alertRepo *repository.AuditAlertRepository,
	scoreRepo *repository.RiskScoreRepository,
) *ReportService {
	return &ReportService{
		logRepo:   logRepo,
		alertRepo: alertRepo,
		scoreRepo: scoreRepo,
	}
}

// Generate 汇总最近 24 小时的巡检、告警与评分数据
func (s *ReportService) Generate(ctx context.Context) (*TrustReport, error) {
	now := time.Now().UnixMilli()
	since := now - 24*time.Hour.Milliseconds()

	logs, err := s.logRepo.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}

	var probes, upProbes, failures int
	var latencySum int64
	for _, log := range logs {
		if log.Category != model.CategoryEndpointTest && log.Category != model.CategoryHealthCheck {
			continue
		}
		if log.StatusCode == 0 && log.Error == "" {
			// 汇总日志不计入单点统计
			continue
		}
		probes++
		latencySum += int64(log.LatencyMs)
		if log.StatusCode > 0 && log.StatusCode < 400 {
			upProbes++
		}
		if log.IsFailure() || log.StatusCode >= 400 {
			failures++
		}
	}

	report := &TrustReport{
		ReportID:    uuid.NewString(),
		PeriodStart: since,
		PeriodEnd:   now,
		TotalProbes: probes,
		GeneratedAt: now,
	}

	if probes > 0 {
		report.UptimePercent = round2(float64(upProbes) / float64(probes) * 100)
		report.AvgLatencyMs = round2(float64(latencySum) / float64(probes))
		report.ErrorRate = round2(float64(failures) / float64(probes) * 100)
	} else {
		report.UptimePercent = 100
	}

	counts, err := s.alertRepo.CountBySeveritySince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	report.AlertCounts = counts

	flagged, err := s.scoreRepo.TopFlagged(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("top flagged: %w", err)
	}
	report.FlaggedWallets = flagged

	report.Recommendations = recommendations(report)
	return report, nil
}

// recommendations 按阈值生成运营建议
func recommendations(r *TrustReport) []string {
	var recs []string
	if r.TotalProbes > 0 && r.UptimePercent < 99 {
		recs = append(recs, fmt.Sprintf("Uptime %.2f%% is below 99%% target, investigate failing endpoints", r.UptimePercent))
	}
	if r.ErrorRate > 5 {
		recs = append(recs, fmt.Sprintf("Error rate %.2f%% exceeds 5%%, review recent audit logs", r.ErrorRate))
	}
	if r.AlertCounts[model.AlertSeverityCritical] > 0 {
		recs = append(recs, fmt.Sprintf("%d critical alerts require immediate attention", r.AlertCounts[model.AlertSeverityCritical]))
	}
	if r.AlertCounts[model.AlertSeverityHigh] > 5 {
		recs = append(recs, fmt.Sprintf("%d high severity alerts in the last 24h, consider tightening risk rules", r.AlertCounts[model.AlertSeverityHigh]))
	}
	return recs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
