package gateway

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 控制请求速率，避免触发交易所限流。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 是一个简单的令牌桶实现。
type TokenBucketLimiter struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	mu     sync.Mutex
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Wait 取一个令牌；令牌不足时等待，ctx 取消则返回 ctx.Err()。
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	l.last = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	// 先预扣，欠下的令牌由等待时间补足
	l.tokens--
	if l.tokens >= 0 {
		l.mu.Unlock()
		return nil
	}
	sleep := time.Duration(-l.tokens / l.rate * float64(time.Second))
	l.mu.Unlock()

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.tokens++
		l.mu.Unlock()
		return ctx.Err()
	}
}
