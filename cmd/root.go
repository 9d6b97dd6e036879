package cmd

import (
	"fmt"
	"os"

	"jukebox/config"
	"jukebox/logger"
	"jukebox/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jukebox",
	Short: "Venue jukebox: song request queue with live updates.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup()
		defer logger.Sync()
		server.Start(cfg)
	},
}

// setup 加载配置并初始化日志
func setup() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	})
	return cfg
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
