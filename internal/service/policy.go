package service

import "time"

// 重试退避策略常量
const (
	// DefaultMaxAttempts 超过即终态失败
	DefaultMaxAttempts = 3

	backoffStepMinutes = 5
	backoffCapMinutes  = 60
)

// BackoffOutcome 单次失败后的处置结果
type BackoffOutcome struct {
	// Terminal 为 true 时行转入 failed，Delay 无意义
	Terminal bool
	Delay    time.Duration
}

// NextRetry 纯函数：根据自增后的尝试次数计算下一步。
// delay = min(60, 5 * attempts) 分钟；attempts >= maxAttempts 时终态。
func NextRetry(attempts, maxAttempts int) BackoffOutcome {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	if attempts >= maxAttempts {
		return BackoffOutcome{Terminal: true}
	}

	minutes := backoffStepMinutes * attempts
	if minutes > backoffCapMinutes {
		minutes = backoffCapMinutes
	}

	return BackoffOutcome{Delay: time.Duration(minutes) * time.Minute}
}
