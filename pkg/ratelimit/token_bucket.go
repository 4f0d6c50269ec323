package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TokenBucket 基于令牌桶算法的QPM限流器，并发安全
type TokenBucket struct {
	rate       float64    // 每秒生成的令牌数
	capacity   float64    // 桶容量，决定允许的突发量
	tokens     float64    // 当前令牌数
	lastRefill time.Time  // 上次补充令牌的时间
	mu         sync.Mutex

	retryWait  time.Duration // 重试的基础等待时间
	maxRetries int           // 最大重试次数
}

// NewTokenBucket 创建限流器。capacity <= 0 时取QPM的一半（至少为1）。
func NewTokenBucket(qpm int, capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = qpm / 2
		if capacity <= 0 {
			capacity = 1
		}
	}

	return &TokenBucket{
		rate:       float64(qpm) / 60.0,
		capacity:   float64(capacity),
		tokens:     float64(capacity), // 初始填满
		lastRefill: time.Now(),
		retryWait:  time.Second,
		maxRetries: 3,
	}
}

// WithRetryPolicy 设置重试策略
func (tb *TokenBucket) WithRetryPolicy(waitTime time.Duration, maxRetries int) *TokenBucket {
	tb.retryWait = waitTime
	tb.maxRetries = maxRetries
	return tb
}

// refill 按经过的时间补充令牌，调用方必须持有锁
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Allow 非阻塞地尝试消耗一个令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Wait 阻塞直到取得一个令牌，或上下文被取消
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()

		if tb.tokens >= 1.0 {
			tb.tokens -= 1.0
			tb.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1.0 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			// 再次尝试获取令牌
		}
	}
}

// RetryWithBackoff 先取令牌再执行fn，可重试错误按指数退避重试
func (tb *TokenBucket) RetryWithBackoff(ctx context.Context, fn func() error) error {
	var err error

	for retry := 0; retry <= tb.maxRetries; retry++ {
		if err = tb.Wait(ctx); err != nil {
			return err
		}

		err = fn()
		if err == nil {
			return nil
		}

		if !isRetryableError(err) || retry >= tb.maxRetries {
			return err
		}

		backoff := tb.retryWait * time.Duration(1<<uint(retry))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			// 继续重试
		}
	}

	return err
}

// isRetryableError 根据错误消息判断是否值得重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	for _, substr := range []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"EOF",
		"connection refused",
		"429 Too Many Requests",
		"rate limit",
		"no such host",
		"服务器繁忙",
		"请求超过限额",
		"QPS限制",
	} {
		if strings.Contains(errStr, substr) {
			return true
		}
	}
	return false
}
