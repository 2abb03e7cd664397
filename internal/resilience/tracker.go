package resilience

import (
	"sync"
	"time"
)

// ErrorRecord 单条错误记录
type ErrorRecord struct {
	At      time.Time
	Kind    string
	Op      string
	Details string
}

// ErrorTracker 滑动窗口错误追踪器，用于观测错误模式
type ErrorTracker struct {
	windowSize int

	mu      sync.Mutex
	records []ErrorRecord

	now func() time.Time // 测试注入
}

// NewErrorTracker 创建错误追踪器，windowSize 为保留的最大记录条数
func NewErrorTracker(windowSize int) *ErrorTracker {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &ErrorTracker{
		windowSize: windowSize,
		now:        time.Now,
	}
}

// Record 记录一次错误
func (t *ErrorTracker) Record(kind, op, details string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, ErrorRecord{
		At:      t.now(),
		Kind:    kind,
		Op:      op,
		Details: details,
	})

	if len(t.records) > t.windowSize {
		t.records = t.records[len(t.records)-t.windowSize:]
	}
}

// ErrorRate 返回时间窗口内的错误数占窗口容量的比例
func (t *ErrorTracker) ErrorRate(window time.Duration) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-window)
	recent := 0
	for _, r := range t.records {
		if r.At.After(cutoff) {
			recent++
		}
	}

	if recent == 0 {
		return 0
	}
	return float64(recent) / float64(t.windowSize)
}

// Summary 按错误类型和操作聚合统计
func (t *ErrorTracker) Summary() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	kinds := make(map[string]int)
	ops := make(map[string]int)
	for _, r := range t.records {
		kinds[r.Kind]++
		ops[r.Op]++
	}

	return map[string]any{
		"total_errors": len(t.records),
		"error_kinds":  kinds,
		"operations":   ops,
	}
}
