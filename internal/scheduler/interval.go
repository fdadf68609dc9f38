// Package scheduler 驱动交易主循环：执行一轮、睡满间隔、再执行下一轮。
// 同一时刻最多只有一轮在跑——下一轮永远等上一轮（含末尾睡眠）结束。
package scheduler

import (
	"context"
	"time"

	"helix/internal/logger"
)

type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewIntervalScheduler(ctx context.Context, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
		sleep:    sleepCtx,
	}
}

// Start 阻塞运行直至 ctx 取消。task 的 panic 不在这里兜底，由调用方处理。
func (s *IntervalScheduler) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("IntervalScheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("IntervalScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}

	prefix := "IntervalScheduler"
	if s.Name != "" {
		prefix = prefix + "[" + s.Name + "]"
	}
	startAt := s.nowFn().UTC()
	logger.Infof("%s: started interval=%s run_immediately=%v at=%s",
		prefix, s.Interval, s.RunImmediately, startAt.Format(time.RFC3339))

	if !s.RunImmediately {
		logger.Infof("%s: 首轮前先睡满一个间隔 (%s)", prefix, s.Interval)
		if !s.sleep(s.ctx, s.Interval) {
			logger.Infof("%s: ctx done, exit", prefix)
			return
		}
	}

	for {
		began := s.nowFn().UTC()
		task()
		elapsed := s.nowFn().UTC().Sub(began)
		uptime := s.nowFn().UTC().Sub(startAt)
		logger.Infof("%s: 本轮耗时=%s 下一轮在 %s 后 | uptime=%s",
			prefix, elapsed.Truncate(time.Second), s.Interval, uptime.Truncate(time.Second))
		if !s.sleep(s.ctx, s.Interval) {
			logger.Infof("%s: ctx done, exit", prefix)
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
