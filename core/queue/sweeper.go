package queue

import (
	"context"
	"sync"
	"time"

	"jukebox/logger"
)

// Sweeper 周期性检查播放中的条目是否已播完
type Sweeper struct {
	engine   *Engine
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper 创建 sweeper，interval <= 0 时使用 1 秒
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		engine:   engine,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 在后台启动检查循环，ctx 取消或调用 Stop 后退出
func (s *Sweeper) Start(ctx context.Context) {
	logger.Info("sweeper started", logger.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop 停止并等待循环退出
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一次检查，错误只记录日志
func (s *Sweeper) RunOnce(ctx context.Context) {
	t, err := s.engine.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("sweep failed", logger.ErrorField(err))
		}
		return
	}
	if t != nil && t.Next == nil {
		logger.Info("tracklist drained", logger.String("lastId", t.Removed.ID))
	}
}
