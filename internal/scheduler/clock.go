// Package scheduler 驱动监控代理的分层巡检节拍
package scheduler

import "time"

// Clock 可注入时钟，测试用假时钟推进节拍
type Clock interface {
	Now() time.Time
}

// SystemClock 真实时钟
type SystemClock struct{}

// Now 当前时间
func (SystemClock) Now() time.Time {
	return time.Now()
}
