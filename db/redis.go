package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jukebox/config"

	"github.com/go-redis/redis/v8"
)

// ConnectRedis 连接变更通道使用的 Redis，Ping 超时 5 秒
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", client.Options().Addr, err)
	}
	return client, nil
}

// CheckRedis 在一个事务里写入、读取并删除探测键
func CheckRedis(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errors.New("redis client is nil")
	}

	const probeKey = "jukebox:probe"
	var got *redis.StringCmd
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, probeKey, "ok", time.Minute)
		got = pipe.Get(ctx, probeKey)
		pipe.Del(ctx, probeKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis probe failed: %w", err)
	}
	if got.Val() != "ok" {
		return fmt.Errorf("redis probe read %q", got.Val())
	}
	return nil
}

// ChannelSubscribers 返回各频道当前的订阅者数量
func ChannelSubscribers(ctx context.Context, client *redis.Client, channels ...string) (map[string]int64, error) {
	counts, err := client.PubSubNumSub(ctx, channels...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis PUBSUB NUMSUB failed: %w", err)
	}
	return counts, nil
}
