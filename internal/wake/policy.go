// Package wake 实现唤醒后等待车辆上线的有界重试策略
package wake

import (
	"context"
	"time"
)

// Outcome 轮询的终止状态
type Outcome string

const (
	OutcomeOnline   Outcome = "online"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeError    Outcome = "error"
)

// Policy 有界重试策略
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy 约 12 次 × 2.5s，总计约 30s
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 12, Delay: 2500 * time.Millisecond}
}

// Ceiling 轮询的最长等待时间
func (p Policy) Ceiling() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Delay
}

// Probe 查询一次车辆是否在线
// 返回 error 表示硬错误（认证失败等），轮询立即终止
type Probe func(ctx context.Context) (online bool, err error)

// Result 轮询结果
type Result struct {
	Outcome  Outcome
	Attempts int
	Err      error
}

// Online 是否确认在线
func (r Result) Online() bool {
	return r.Outcome == OutcomeOnline
}

// Poll 按策略反复探测，直到在线、次数耗尽、硬错误或 ctx 取消
// ctx 取消时等待中的 timer 会被停止
func Poll(ctx context.Context, p Policy, probe Probe) Result {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 1; i <= attempts; i++ {
		online, err := probe(ctx)
		if err != nil {
			return Result{Outcome: OutcomeError, Attempts: i, Err: err}
		}
		if online {
			return Result{Outcome: OutcomeOnline, Attempts: i}
		}
		if i == attempts {
			break
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Outcome: OutcomeError, Attempts: i, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return Result{Outcome: OutcomeTimedOut, Attempts: attempts}
}
