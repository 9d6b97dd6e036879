package cmd

import (
	"context"
	"fmt"
	"time"

	"jukebox/config"
	"jukebox/core/notify"
	"jukebox/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:          "redis",
	Short:        "检查变更通道",
	Long:         `检查 Redis 是否可达、能否读写，并显示变更频道上的订阅进程数。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if !cfg.RedisEnabled() {
			fmt.Println("REDIS_HOST 未配置，服务使用进程内变更通道")
			return nil
		}

		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.CheckRedis(ctx, client); err != nil {
			return err
		}

		subs, err := db.ChannelSubscribers(ctx, client, notify.DefaultChannel)
		if err != nil {
			return err
		}
		fmt.Printf("%s 可读写，频道 %s 上有 %d 个订阅者\n",
			client.Options().Addr, notify.DefaultChannel, subs[notify.DefaultChannel])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
