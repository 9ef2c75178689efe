package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/blockchain"
	"github.com/cronosmart/trust-monitor/internal/metrics"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
	"github.com/cronosmart/trust-monitor/internal/scheduler"
	"github.com/cronosmart/trust-monitor/internal/service"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// PaymentTxHeader x402 支付交易头
const PaymentTxHeader = "x-payment-tx"

// ChainStatus 链 RPC 端点健康视图
type ChainStatus interface {
	GetHealthyEndpoints() []*blockchain.RPCEndpoint
}

// AuditHandler 监控服务 HTTP 处理器
type AuditHandler struct {
	agent       *scheduler.Agent
	chain       ChainStatus
	logRepo     *repository.AuditLogRepository
	alertRepo   *repository.AuditAlertRepository
	scoreRepo   *repository.RiskScoreRepository
	reportSvc   *service.ReportService
	paymentSvc  *service.PaymentService
	deepScanSvc *service.DeepScanService

	serviceName string
	version     string
}

// NewAuditHandler 创建监控处理器
func NewAuditHandler(
	agent *scheduler.Agent,
	chain ChainStatus,
	logRepo *repository.AuditLogRepository,
	alertRepo *repository.AuditAlertRepository,
	scoreRepo *repository.RiskScoreRepository,
	reportSvc *service.ReportService,
	paymentSvc *service.PaymentService,
	deepScanSvc *service.DeepScanService,
	serviceName, version string,
) *AuditHandler {
	return &AuditHandler{
		agent:       agent,
		chain:       chain,
		logRepo:     logRepo,
		alertRepo:   alertRepo,
		scoreRepo:   scoreRepo,
		reportSvc:   reportSvc,
		paymentSvc:  paymentSvc,
		deepScanSvc: deepScanSvc,
		serviceName: serviceName,
		version:     version,
	}
}

// StartAgent 启动监控代理
func (h *AuditHandler) StartAgent(c *gin.Context) {
	if err := h.agent.Start(); err != nil {
		Conflict(c, err.Error())
		return
	}
	Success(c, gin.H{"running": true})
}

// StopAgent 停止监控代理
func (h *AuditHandler) StopAgent(c *gin.Context) {
	h.agent.Stop()
	Success(c, gin.H{"running": false})
}

// RunCycle 手动触发一次全量巡检，异步执行
func (h *AuditHandler) RunCycle(c *gin.Context) {
	go h.agent.RunFullCycle(context.Background())
	Success(c, gin.H{"triggered": true})
}

// ListLogs 分页查询审计日志
func (h *AuditHandler) ListLogs(c *gin.Context) {
	var pagination repository.Pagination
	if err := c.ShouldBindQuery(&pagination); err != nil {
		BadRequest(c, "invalid pagination")
		return
	}

	query := &repository.LogQuery{
		Category: model.AuditCategory(c.Query("category")),
		Severity: model.LogSeverity(c.Query("severity")),
	}

	logs, total, err := h.logRepo.List(c.Request.Context(), query, &pagination)
	if err != nil {
		logger.Error("list logs failed", zap.Error(err))
		InternalError(c, "failed to list audit logs")
		return
	}
	SuccessPaged(c, logs, pagination.Page, pagination.Limit(), total)
}

// ListAlerts 查询告警，状态默认 open
func (h *AuditHandler) ListAlerts(c *gin.Context) {
	status := c.DefaultQuery("status", string(model.AlertStatusOpen))

	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}

	alerts, err := h.alertRepo.List(c.Request.Context(), &repository.AlertQuery{
		Status:   model.AlertStatus(status),
		Severity: model.AlertSeverity(c.Query("severity")),
		Limit:    limit,
	})
	if err != nil {
		logger.Error("list alerts failed", zap.Error(err))
		InternalError(c, "failed to list alerts")
		return
	}
	Success(c, alerts)
}

// resolveAlertRequest 告警处理请求
type resolveAlertRequest struct {
	Status     model.AlertStatus `json:"status" binding:"required"`
	ResolvedBy string            `json:"resolvedBy"`
}

// ResolveAlert 流转告警状态
func (h *AuditHandler) ResolveAlert(c *gin.Context) {
	alertID := c.Param("alertId")

	var req resolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "status is required")
		return
	}

	switch req.Status {
	case model.AlertStatusOpen, model.AlertStatusInvestigating,
		model.AlertStatusResolved, model.AlertStatusFalsePositive:
	default:
		BadRequest(c, "invalid status")
		return
	}

	alert, err := h.alertRepo.Resolve(c.Request.Context(), alertID, req.Status, req.ResolvedBy)
	if errors.Is(err, repository.ErrAlertNotFound) {
		NotFound(c, "alert not found")
		return
	}
	if err != nil {
		logger.Error("resolve alert failed",
			zap.String("alert_id", alertID),
			zap.Error(err))
		InternalError(c, "failed to update alert")
		return
	}
	Success(c, alert)
}

// LatestReport 生成最近 24 小时报告
func (h *AuditHandler) LatestReport(c *gin.Context) {
	report, err := h.reportSvc.Generate(c.Request.Context())
	if err != nil {
		logger.Error("report generation failed", zap.Error(err))
		InternalError(c, "failed to generate report")
		return
	}
	Success(c, report)
}

// ListRiskScores 查询风险评分
func (h *AuditHandler) ListRiskScores(c *gin.Context) {
	query := &repository.ScoreQuery{
		UserType: model.UserType(c.Query("userType")),
	}
	if v := c.Query("flagged"); v != "" {
		flagged, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(c, "invalid flagged value")
			return
		}
		query.Flagged = &flagged
	}

	scores, err := h.scoreRepo.List(c.Request.Context(), query)
	if err != nil {
		logger.Error("list risk scores failed", zap.Error(err))
		InternalError(c, "failed to list risk scores")
		return
	}
	Success(c, scores)
}

// DeepScan x402 付费深度扫描：无支付头返回 402 报价，
// 支付校验失败返回 400
func (h *AuditHandler) DeepScan(c *gin.Context) {
	orderID := c.Param("orderId")

	paymentTx := c.GetHeader(PaymentTxHeader)
	if paymentTx == "" {
		metrics.DeepScansTotal.WithLabelValues("payment_required").Inc()
		PaymentRequired(c, h.paymentSvc.GeneratePaymentRequest("deep-scan"))
		return
	}

	if err := h.paymentSvc.VerifyPayment(c.Request.Context(), paymentTx); err != nil {
		metrics.DeepScansTotal.WithLabelValues("payment_rejected").Inc()
		BadRequest(c, "invalid payment: "+err.Error())
		return
	}

	result, err := h.deepScanSvc.PerformDeepScan(c.Request.Context(), orderID)
	if errors.Is(err, service.ErrOrderNotFound) {
		metrics.DeepScansTotal.WithLabelValues("not_found").Inc()
		NotFound(c, "order not found")
		return
	}
	if err != nil {
		logger.Error("deep scan failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		InternalError(c, "deep scan failed")
		return
	}

	metrics.DeepScansTotal.WithLabelValues("completed").Inc()
	Success(c, result)
}

// Health 服务自身健康状态，含链 RPC 端点存活数
func (h *AuditHandler) Health(c *gin.Context) {
	payload := gin.H{
		"status":  "ok",
		"service": h.serviceName,
		"version": h.version,
		"agent":   h.agent.IsRunning(),
	}
	if h.chain != nil {
		payload["healthy_rpc_endpoints"] = len(h.chain.GetHealthyEndpoints())
	}
	Success(c, payload)
}
