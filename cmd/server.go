package cmd

import (
	"jukebox/logger"
	"jukebox/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动点歌服务",
	Long:  `启动 HTTP/WebSocket 服务：点歌与播放控制 API、实时推送，以及（SWEEP_ENABLED=true 时）播放结束检查。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup()
		defer logger.Sync()
		server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
