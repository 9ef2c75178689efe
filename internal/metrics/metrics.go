// Package metrics 提供信任监控服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trust_monitor"

// 巡检周期指标
var (
	// CyclesTotal 监控周期总数
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "监控周期总数",
		},
		[]string{"result"}, // result: completed/skipped
	)

	// TaskDuration 任务执行耗时
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "巡检任务耗时(秒)",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"task"},
	)

	// TaskFailuresTotal 任务失败总数
	TaskFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_failures_total",
			Help:      "巡检任务失败总数",
		},
		[]string{"task"},
	)
)

// 巡检与扫描指标
var (
	// ProbesTotal 端点巡检总数
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "端点巡检总数",
		},
		[]string{"endpoint", "status"}, // status: up/degraded/down
	)

	// EventsScannedTotal 扫描到的托管事件总数
	EventsScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_scanned_total",
			Help:      "扫描到的托管合约事件总数",
		},
		[]string{"event"},
	)

	// MismatchesTotal 对账不一致总数
	MismatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mismatches_total",
			Help:      "对账发现的状态不一致总数",
		},
		[]string{"severity"},
	)
)

// 告警与付费指标
var (
	// AlertsCreatedTotal 创建的告警总数
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "创建的审计告警总数",
		},
		[]string{"type", "severity"},
	)

	// WalletsScoredTotal 评分的钱包总数
	WalletsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_scored_total",
			Help:      "完成风险评分的钱包总数",
		},
		[]string{"flagged"}, // flagged: true/false
	)

	// DeepScansTotal 深度扫描总数
	DeepScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deep_scans_total",
			Help:      "付费深度扫描总数",
		},
		[]string{"result"}, // result: completed/payment_required/payment_rejected/not_found
	)
)
