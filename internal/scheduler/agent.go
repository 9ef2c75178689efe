package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/metrics"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

var (
	// ErrAgentAlreadyRunning 代理已在运行
	ErrAgentAlreadyRunning = errors.New("agent already running")
)

// Agent 监控代理：cron 基础节拍驱动周期，周期不可重入，
// 各任务按节拍描述符分层执行
type Agent struct {
	interval time.Duration
	clock    Clock
	tasks    []*CadenceTask

	cron    *cron.Cron
	entryID cron.EntryID

	mu      sync.Mutex
	cycleMu sync.Mutex
	running bool
	cycles  int64
}

// NewAgent 创建监控代理
func NewAgent(interval time.Duration, clock Clock, tasks []*CadenceTask) *Agent {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Agent{
		interval: interval,
		clock:    clock,
		tasks:    tasks,
	}
}

// Start 启动代理，已在运行时返回错误
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAgentAlreadyRunning
	}

	a.cron = cron.New()
	spec := fmt.Sprintf("@every %s", a.interval)
	entryID, err := a.cron.AddFunc(spec, func() {
		a.RunCycle(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}
	a.entryID = entryID
	a.cron.Start()
	a.running = true

	logger.Info("audit agent started",
		zap.Duration("interval", a.interval),
		zap.Int("tasks", len(a.tasks)))
	return nil
}

// Stop 停止代理并等待进行中的周期结束。未运行时为空操作。
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	ctx := a.cron.Stop()
	<-ctx.Done()

	// 等待手动触发的周期
	a.cycleMu.Lock()
	a.cycleMu.Unlock()

	a.running = false
	logger.Info("audit agent stopped")
}

// IsRunning 代理是否在运行
func (a *Agent) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Cycles 已完成周期数
func (a *Agent) Cycles() int64 {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()
	return a.cycles
}

// RunCycle 执行一个周期：只运行到拍的任务。
// 上个周期未结束时跳过本拍。
func (a *Agent) RunCycle(ctx context.Context) {
	if !a.cycleMu.TryLock() {
		logger.Warn("previous cycle still running, tick skipped")
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return
	}
	defer a.cycleMu.Unlock()

	now := a.clock.Now()
	for _, task := range a.tasks {
		if !task.Due(now) {
			continue
		}
		a.runTask(ctx, task)
		task.MarkRun(now)
	}
	a.cycles++
	metrics.CyclesTotal.WithLabelValues("completed").Inc()
}

// RunFullCycle 忽略节拍执行全部任务一次 (管理端手动触发)
func (a *Agent) RunFullCycle(ctx context.Context) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	now := a.clock.Now()
	for _, task := range a.tasks {
		a.runTask(ctx, task)
		task.MarkRun(now)
	}
	a.cycles++
}

// runTask 执行单个任务，失败与 panic 均不打断周期
func (a *Agent) runTask(ctx context.Context, task *CadenceTask) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TaskFailuresTotal.WithLabelValues(task.Name).Inc()
			logger.Error("task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	err := task.Run(ctx)
	metrics.TaskDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TaskFailuresTotal.WithLabelValues(task.Name).Inc()
		logger.Error("task failed",
			zap.String("task", task.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}

	logger.Debug("task completed",
		zap.String("task", task.Name),
		zap.Duration("elapsed", time.Since(start)))
}
