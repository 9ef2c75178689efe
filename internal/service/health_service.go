// Package service 实现信任监控的核心业务逻辑
package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/config"
	"github.com/cronosmart/trust-monitor/internal/metrics"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// 巡检结果状态
const (
	ProbeStatusUp       = "up"
	ProbeStatusDegraded = "degraded"
	ProbeStatusDown     = "down"
)

// ProbeResult 单个端点的巡检结果
type ProbeResult struct {
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMs  int    `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// HealthService 市场后端端点巡检
type HealthService struct {
	httpClient *http.Client
	baseURL    string
	endpoints  []config.ProbeEndpoint
	logRepo    *repository.AuditLogRepository
}

// NewHealthService 创建巡检服务
func NewHealthService(baseURL string, endpoints []config.ProbeEndpoint, timeout time.Duration, logRepo *repository.AuditLogRepository) *HealthService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HealthService{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoints:  endpoints,
		logRepo:    logRepo,
	}
}

// Probe 巡检单个端点并记录一条审计日志。
// <400 视为 up，>=400 视为 degraded，传输失败视为 down。
func (s *HealthService) Probe(ctx context.Context, ep config.ProbeEndpoint) *ProbeResult {
	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}

	result := &ProbeResult{
		Endpoint: ep.Path,
		Method:   method,
	}

	var body io.Reader
	if ep.Body != "" {
		body = strings.NewReader(ep.Body)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+ep.Path, body)
	if err != nil {
		result.Status = ProbeStatusDown
		result.Error = err.Error()
		s.logProbe(ctx, result)
		return result
	}
	if ep.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	result.LatencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		result.Status = ProbeStatusDown
		result.Error = err.Error()
		s.logProbe(ctx, result)
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 400 {
		result.Status = ProbeStatusUp
	} else {
		result.Status = ProbeStatusDegraded
	}

	s.logProbe(ctx, result)
	return result
}

// logProbe 写入单条巡检日志
func (s *HealthService) logProbe(ctx context.Context, result *ProbeResult) {
	metrics.ProbesTotal.WithLabelValues(result.Endpoint, result.Status).Inc()

	severity := model.SeverityInfo
	switch result.Status {
	case ProbeStatusDegraded:
		severity = model.SeverityWarning
	case ProbeStatusDown:
		severity = model.SeverityError
	}

	log := &model.AuditLog{
		Category:   model.CategoryEndpointTest,
		Endpoint:   result.Endpoint,
		Method:     result.Method,
		StatusCode: result.StatusCode,
		LatencyMs:  result.LatencyMs,
		Error:      result.Error,
		Severity:   severity,
		Metadata:   model.JSONMap{"status": result.Status},
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		logger.Warn("probe audit log write failed",
			zap.String("endpoint", result.Endpoint),
			zap.Error(err))
	}
}

// RunHealthChecks 并发巡检全部配置端点并写入一条汇总日志
func (s *HealthService) RunHealthChecks(ctx context.Context) ([]*ProbeResult, error) {
	results := make([]*ProbeResult, len(s.endpoints))

	var wg sync.WaitGroup
	for i, ep := range s.endpoints {
		wg.Add(1)
		go func(idx int, ep config.ProbeEndpoint) {
			defer wg.Done()
			results[idx] = s.Probe(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	var up, degraded, down int
	for _, r := range results {
		switch r.Status {
		case ProbeStatusUp:
			up++
		case ProbeStatusDegraded:
			degraded++
		case ProbeStatusDown:
			down++
		}
	}

	severity := model.SeverityInfo
	if degraded > 0 {
		severity = model.SeverityWarning
	}
	if down > 0 {
		severity = model.SeverityError
	}

	summary := &model.AuditLog{
		Category: model.CategoryHealthCheck,
		Severity: severity,
		Metadata: model.JSONMap{
			"total":    len(results),
			"up":       up,
			"degraded": degraded,
			"down":     down,
		},
	}
	if err := s.logRepo.Create(ctx, summary); err != nil {
		logger.Warn("health summary log write failed", zap.Error(err))
	}

	logger.Info("health checks completed",
		zap.Int("total", len(results)),
		zap.Int("up", up),
		zap.Int("degraded", degraded),
		zap.Int("down", down))

	return results, nil
}
