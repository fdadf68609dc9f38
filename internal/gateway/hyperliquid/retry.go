package hyperliquid

import (
	"context"
	"time"

	"helix/internal/logger"
)

// retryPolicy 包裹对交易所的一次调用：
// 瞬态错误重置客户端并按 0.5s 起步的指数退避重试，最多 MaxAttempts 次；
// 未知错误只做一次重置重试；策略性/解析类错误直接返回。
type retryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration

	sleep func(time.Duration) // 测试注入
	reset func()
}

func (p retryPolicy) run(ctx context.Context, name string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := p.BaseBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	doSleep := p.sleep
	if doSleep == nil {
		doSleep = time.Sleep
	}

	var lastErr error
	usedUnexpectedRetry := false
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		switch Classify(err) {
		case KindTransient:
			if attempt == attempts {
				return err
			}
			logger.Warnf("hyperliquid: %s 瞬态失败（第 %d/%d 次）：%v，%s 后重试", name, attempt, attempts, err, backoff)
			if p.reset != nil {
				p.reset()
			}
			doSleep(backoff)
			backoff *= 2
		case KindUnexpected:
			if usedUnexpectedRetry {
				return err
			}
			usedUnexpectedRetry = true
			logger.Warnf("hyperliquid: %s 出现未知错误：%v，重置客户端后重试一次", name, err)
			if p.reset != nil {
				p.reset()
			}
			attempt-- // 这次补偿重试不占用瞬态重试额度
		default:
			return err
		}
	}
	return lastErr
}
