package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"jukebox/config"
	"jukebox/core/queue"
	"jukebox/logger"
	"jukebox/model"
	"jukebox/repository"
	"jukebox/server"
	"jukebox/storage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	clearYes     bool
	clearOffline bool
	exportOut    string
	exportMinio  bool
)

var tracklistCmd = &cobra.Command{
	Use:   "tracklist",
	Short: "点歌队列维护",
	Long:  `查看、清空或导出点歌队列。`,
}

var tracklistListCmd = &cobra.Command{
	Use:          "list",
	Short:        "按播放顺序列出队列",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(ctx context.Context, _ *config.Config, comps *server.Components) error {
			views, err := comps.Engine.List(ctx)
			if err != nil {
				return err
			}
			counts, err := comps.Store.CountByStatus(ctx)
			if err != nil {
				return err
			}
			printTracklist(os.Stdout, views, counts)
			return nil
		})
	},
}

var tracklistClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "清空队列",
	Long:         `删除队列中的所有条目（包括正在播放的歌曲），在线客户端会收到删除事件。未配置 REDIS_HOST 时只能在 server 停止后加 --offline 执行。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			fmt.Println("此操作会删除全部条目，确认请加 --yes")
			return nil
		}
		return withComponents(func(ctx context.Context, cfg *config.Config, comps *server.Components) error {
			if err := checkClearAllowed(cfg, clearOffline); err != nil {
				return err
			}
			n, err := comps.Store.ClearAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("已删除 %d 条记录\n", n)
			return nil
		})
	},
}

var tracklistExportCmd = &cobra.Command{
	Use:          "export",
	Short:        "导出队列快照",
	Long:         `把当前队列导出为 JSON，写入本地文件（--out）或上传到 MinIO 存储桶（--minio）。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" && !exportMinio {
			exportOut = storage.ExportKey(time.Now())
		}
		return withComponents(func(ctx context.Context, cfg *config.Config, comps *server.Components) error {
			data, err := buildExport(ctx, comps.Store, time.Now())
			if err != nil {
				return err
			}

			if exportOut != "" {
				if err := storage.WriteFile(exportOut, data); err != nil {
					return err
				}
				fmt.Printf("已导出到 %s\n", exportOut)
			}
			if exportMinio {
				store, err := storage.NewMinioStore(ctx, cfg)
				if err != nil {
					return err
				}
				location, err := store.PutJSON(ctx, storage.ExportKey(time.Now()), data)
				if err != nil {
					return err
				}
				fmt.Printf("已上传到 %s\n", location)
			}
			return nil
		})
	},
}

// checkClearAllowed 没有共享变更通道时，只有确认 server 未运行（offline）才允许清空
func checkClearAllowed(cfg *config.Config, offline bool) error {
	if offline {
		return nil
	}
	if err := cfg.RequireSharedFeed(); err != nil {
		return fmt.Errorf("%w; stop the server and rerun with --offline", err)
	}
	return nil
}

// withComponents 连接存储后执行 fn，返回的错误交给 cobra 输出
func withComponents(fn func(ctx context.Context, cfg *config.Config, comps *server.Components) error) error {
	cfg := setup()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	comps, err := server.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("无法连接到存储: %w", err)
	}
	defer comps.Close()

	return fn(ctx, cfg, comps)
}

// buildExport 读取队列并编码为导出格式
func buildExport(ctx context.Context, store *repository.TrackStore, now time.Time) ([]byte, error) {
	entries, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewSnapshot(entries, counts, now).Encode()
}

func printTracklist(w io.Writer, views []queue.EntryView, counts map[model.TrackStatus]int64) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"#", "Status", "Title", "Artist", "Priority", "Confirmed", "Length", "Progress", "Requested By", "ID"})

	for i, v := range views {
		progress := "-"
		if v.Progress != nil {
			progress = fmt.Sprintf("%ds (%d%%)", *v.Progress, *v.ProgressPercent)
		}
		confirmed := "no"
		if v.ExistsAtMaster {
			confirmed = "yes"
		}
		tw.AppendRow(table.Row{
			i + 1, v.Status, v.Title, v.Artist, v.Priority, confirmed,
			strconv.Itoa(v.EffectiveLength()) + "s", progress, v.RequestedBy, v.ID,
		})
	}

	footer := ""
	for _, st := range model.AllStatuses {
		footer += fmt.Sprintf("%s=%d ", st, counts[st])
	}
	tw.AppendFooter(table.Row{"", "Total", len(views), footer})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	tw.Render()
}

func init() {
	tracklistClearCmd.Flags().BoolVar(&clearYes, "yes", false, "确认删除全部条目")
	tracklistClearCmd.Flags().BoolVar(&clearOffline, "offline", false, "server 未运行，不需要推送删除事件")
	tracklistExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "导出到本地文件路径")
	tracklistExportCmd.Flags().BoolVar(&exportMinio, "minio", false, "上传到 MinIO 存储桶")

	tracklistCmd.AddCommand(tracklistListCmd, tracklistClearCmd, tracklistExportCmd)
	rootCmd.AddCommand(tracklistCmd)
}
