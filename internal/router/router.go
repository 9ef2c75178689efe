// Package router 提供路由注册
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cronosmart/trust-monitor/internal/handler"
	"github.com/cronosmart/trust-monitor/internal/middleware"
)

// Register 注册全部路由：管理接口走 x-admin-key 鉴权，
// 深度扫描走 x402 支付门
func Register(engine *gin.Engine, auditHandler *handler.AuditHandler, adminKey string) {
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	audit := engine.Group("/audit")
	{
		// 公共端点
		audit.GET("/health", auditHandler.Health)
		audit.POST("/deep-scan/:orderId", auditHandler.DeepScan)

		// 管理端点
		admin := audit.Group("")
		admin.Use(middleware.AdminAuth(adminKey))
		{
			admin.POST("/start", auditHandler.StartAgent)
			admin.POST("/stop", auditHandler.StopAgent)
			admin.POST("/run", auditHandler.RunCycle)
			admin.GET("/logs", auditHandler.ListLogs)
			admin.GET("/alerts", auditHandler.ListAlerts)
			admin.PATCH("/alerts/:alertId", auditHandler.ResolveAlert)
			admin.GET("/report/latest", auditHandler.LatestReport)
			admin.GET("/risk-scores", auditHandler.ListRiskScores)
		}
	}
}
