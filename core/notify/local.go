package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"jukebox/logger"
)

const localBufferSize = 1024

type localSub struct {
	ch       chan Event
	overflow atomic.Bool
}

// LocalFeed 进程内变更通道，未配置 Redis 时使用
type LocalFeed struct {
	mu   sync.RWMutex
	subs map[*localSub]struct{}
}

// NewLocalFeed 创建进程内变更通道
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[*localSub]struct{})}
}

// Publish never blocks; a subscriber whose buffer is full is flagged for resync instead.
func (f *LocalFeed) Publish(ctx context.Context, ev Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subs {
		select {
		case sub.ch <- ev:
		default:
			if !sub.overflow.Swap(true) {
				logger.Warn("local change feed buffer full, subscriber will resync",
					logger.String("operationType", string(ev.OperationType)))
			}
		}
	}
	return nil
}

// Run 将事件按发布顺序交给 h，直到 ctx 取消
func (f *LocalFeed) Run(ctx context.Context, h Handler) error {
	sub := &localSub{ch: make(chan Event, localBufferSize)}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sub.ch:
			h.HandleEvent(ev)
			if sub.overflow.Swap(false) {
				h.Resync()
			}
		}
	}
}

// Active 是否存在订阅者
func (f *LocalFeed) Active() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs) > 0
}
