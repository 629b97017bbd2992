package engine

import (
	"errors"
	"time"
)

// StreamState 行情流状态
type StreamState int32

const (
	// StateIdle 尚未订阅
	StateIdle StreamState = iota
	// StateStreaming 正在消费快照
	StateStreaming
	// StateReconnecting 连接断开，等待退避后重连
	StateReconnecting
	// StateClosed 已退出，不会再恢复
	StateClosed
)

// String 返回状态名称
func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStreaming:
		return "STREAMING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrReconnectExhausted 连续重连失败次数达到上限。
var ErrReconnectExhausted = errors.New("stream reconnect attempts exhausted")

// Backoff 指数退避，封顶 Max。MaxAttempts 为 0 时不限次数。
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoff 默认退避参数
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     500 * time.Millisecond,
		Max:         30 * time.Second,
		Multiplier:  2,
		MaxAttempts: 20,
	}
}

// Delay 第 attempt 次（从 1 开始）重连前的等待时间。
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial)
	for i := 1; i < attempt; i++ {
		d *= mult
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Exhausted 是否已超过最大尝试次数。
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt > b.MaxAttempts
}
