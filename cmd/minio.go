package cmd

import (
	"context"
	"fmt"
	"time"

	"jukebox/config"
	"jukebox/storage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:          "minio",
	Short:        "查看 MinIO 中的队列导出",
	Long:         `列出存储桶中已上传的队列快照。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}

		objects, err := store.List(ctx, minioPrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Key", "Size", "Last Modified"})
		for _, obj := range objects {
			tw.AppendRow(table.Row{obj.Key, obj.Size, obj.LastModified.Format(time.RFC3339)})
		}
		tw.AppendFooter(table.Row{"Total", len(objects), ""})
		fmt.Println(tw.Render())
		return nil
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "tracklist/", "对象前缀")
	rootCmd.AddCommand(minioCmd)
}
