package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type counter struct {
	mu    sync.Mutex
	count int
}

func (c *counter) task(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return nil
}

func (c *counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestCadenceTask_Due(t *testing.T) {
	clock := newFakeClock()
	task := &CadenceTask{Name: "scan", Interval: 5 * time.Minute}

	// 首次总是到拍
	assert.True(t, task.Due(clock.Now()))
	task.MarkRun(clock.Now())
	assert.False(t, task.Due(clock.Now()))

	clock.Advance(4 * time.Minute)
	assert.False(t, task.Due(clock.Now()))

	clock.Advance(time.Minute)
	assert.True(t, task.Due(clock.Now()))
}

func TestCadenceTask_ZeroIntervalAlwaysDue(t *testing.T) {
	clock := newFakeClock()
	task := &CadenceTask{Name: "health"}

	task.MarkRun(clock.Now())
	assert.True(t, task.Due(clock.Now()))
}

func TestAgent_TieredCadence(t *testing.T) {
	clock := newFakeClock()
	interval := 30 * time.Second

	everyTick := &counter{}
	everyFive := &counter{}
	tasks := []*CadenceTask{
		{Name: "health", Run: everyTick.task},
		{Name: "scan", Interval: 5 * interval, Run: everyFive.task},
	}
	agent := NewAgent(interval, clock, tasks)
	ctx := context.Background()

	// 周期 0：两者都首次执行
	agent.RunCycle(ctx)
	assert.Equal(t, 1, everyTick.value())
	assert.Equal(t, 1, everyFive.value())

	// 周期 1-4：只有基础任务
	for i := 0; i < 4; i++ {
		clock.Advance(interval)
		agent.RunCycle(ctx)
	}
	assert.Equal(t, 5, everyTick.value())
	assert.Equal(t, 1, everyFive.value())

	// 周期 5：到拍
	clock.Advance(interval)
	agent.RunCycle(ctx)
	assert.Equal(t, 6, everyTick.value())
	assert.Equal(t, 2, everyFive.value())

	assert.Equal(t, int64(6), agent.Cycles())
}

func TestAgent_RunFullCycleIgnoresCadence(t *testing.T) {
	clock := newFakeClock()
	slow := &counter{}
	agent := NewAgent(30*time.Second, clock, []*CadenceTask{
		{Name: "fraud", Interval: time.Hour, Run: slow.task},
	})
	ctx := context.Background()

	agent.RunCycle(ctx)
	require.Equal(t, 1, slow.value())

	// 未到拍但全量触发执行
	agent.RunFullCycle(ctx)
	assert.Equal(t, 2, slow.value())
}

func TestAgent_TaskFailureDoesNotStopCycle(t *testing.T) {
	clock := newFakeClock()
	after := &counter{}
	agent := NewAgent(30*time.Second, clock, []*CadenceTask{
		{Name: "failing", Run: func(ctx context.Context) error { return errors.New("boom") }},
		{Name: "panicking", Run: func(ctx context.Context) error { panic("boom") }},
		{Name: "after", Run: after.task},
	})

	agent.RunCycle(context.Background())
	assert.Equal(t, 1, after.value())
}

func TestAgent_StartStopIdempotent(t *testing.T) {
	agent := NewAgent(time.Hour, newFakeClock(), nil)

	require.NoError(t, agent.Start())
	assert.True(t, agent.IsRunning())
	assert.ErrorIs(t, agent.Start(), ErrAgentAlreadyRunning)

	agent.Stop()
	assert.False(t, agent.IsRunning())
	agent.Stop() // 重复停止为空操作

	// 停止后可重新启动
	require.NoError(t, agent.Start())
	agent.Stop()
}

func TestAgent_NonReentrantCycle(t *testing.T) {
	clock := newFakeClock()
	block := make(chan struct{})
	started := make(chan struct{})
	slow := &counter{}

	agent := NewAgent(30*time.Second, clock, []*CadenceTask{
		{Name: "slow", Run: func(ctx context.Context) error {
			close(started)
			<-block
			return slow.task(ctx)
		}},
	})

	go agent.RunCycle(context.Background())
	<-started

	// 上个周期进行中，这一拍被跳过
	agent.RunCycle(context.Background())
	assert.Equal(t, 0, slow.value())

	close(block)
}
