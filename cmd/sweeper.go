package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"jukebox/core/queue"
	"jukebox/logger"
	"jukebox/server"

	"github.com/spf13/cobra"
)

var sweeperCmd = &cobra.Command{
	Use:          "sweeper",
	Short:        "独立运行播放结束检查",
	Long:         `周期性检查正在播放的歌曲是否已播完，删除后自动播放下一首。可以与多个 server 进程同时运行，需要配置 REDIS_HOST。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()

		if err := cfg.RequireSharedFeed(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		comps, err := server.Bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer comps.Close()

		sweeper := queue.NewSweeper(comps.Engine, cfg.SweepInterval)
		sweeper.Start(ctx)

		<-ctx.Done()
		sweeper.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweeperCmd)
}
