package scheduler

import (
	"context"
	"sync"
	"time"
)

// TaskFunc 巡检任务
type TaskFunc func(ctx context.Context) error

// CadenceTask 带节拍的任务描述：interval 为 0 表示每个周期都执行
type CadenceTask struct {
	Name     string
	Interval time.Duration
	Run      TaskFunc

	mu      sync.Mutex
	lastRun time.Time
}

// Due 是否到达执行时间
func (t *CadenceTask) Due(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Interval <= 0 {
		return true
	}
	if t.lastRun.IsZero() {
		return true
	}
	return now.Sub(t.lastRun) >= t.Interval
}

// MarkRun 记录执行时间
func (t *CadenceTask) MarkRun(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun = now
}

// LastRun 上次执行时间
func (t *CadenceTask) LastRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun
}
