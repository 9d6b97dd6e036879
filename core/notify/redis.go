package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"jukebox/logger"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel 变更事件的 Redis 频道
const DefaultChannel = "jukebox:tracklist:changes"

// RedisFeed 基于 Redis Pub/Sub 的跨进程变更通道
type RedisFeed struct {
	client  *redis.Client
	channel string
	backoff Backoff
	active  atomic.Bool
}

// NewRedisFeed 创建 Redis 变更通道
func NewRedisFeed(client *redis.Client, channel string) *RedisFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisFeed{
		client:  client,
		channel: channel,
		backoff: Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second},
	}
}

// WithBackoff overrides the resubscription backoff.
func (f *RedisFeed) WithBackoff(b Backoff) *RedisFeed {
	f.backoff = b
	return f
}

// Publish 发布一条事件
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Run 订阅频道并把事件交给 h。订阅出错时按退避策略重新订阅，
// 每次重新订阅成功后调用 h.Resync()，由消费者用全量快照补齐漏掉的事件。
func (f *RedisFeed) Run(ctx context.Context, h Handler) error {
	attempt := 0
	subscribedBefore := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		subscribed, err := f.consume(ctx, h, subscribedBefore)
		if subscribed {
			subscribedBefore = true
			attempt = 0
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := f.backoff.Duration(attempt)
		attempt++
		logger.Warn("change feed subscription lost, retrying",
			logger.ErrorField(err),
			logger.String("channel", f.channel),
			logger.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// consume runs one subscription until it fails; subscribed reports whether it got confirmed.
func (f *RedisFeed) consume(ctx context.Context, h Handler, resync bool) (subscribed bool, err error) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	// 等待订阅确认
	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	f.active.Store(true)
	defer f.active.Store(false)

	logger.Info("change feed subscribed", logger.String("channel", f.channel), logger.Bool("resync", resync))
	if resync {
		h.Resync()
	}

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return true, err
		}

		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("invalid change event payload",
				logger.ErrorField(err),
				logger.String("channel", msg.Channel))
			continue
		}
		h.HandleEvent(ev)
	}
}

// Active 当前是否持有有效订阅
func (f *RedisFeed) Active() bool {
	return f.active.Load()
}
