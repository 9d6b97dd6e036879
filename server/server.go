package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jukebox/config"
	"jukebox/core/hub"
	"jukebox/core/notify"
	"jukebox/core/queue"
	"jukebox/db"
	"jukebox/logger"
	"jukebox/repository"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// corsMiddleware 允许任意来源访问，网页端和主控都不做鉴权
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter 路由同时挂在 / 和 /api 下，兼容两种前端部署方式
func NewRouter(h *TracklistHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	h.RegisterRoutes(router.PathPrefix("/api").Subrouter())
	h.RegisterRoutes(router)

	// OPTIONS 预检请求没有对应的路由
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	return router
}

// Components 一个进程内运行所需的全部组件
type Components struct {
	DB     *gorm.DB
	Feed   notify.Feed
	Store  *repository.TrackStore
	Engine *queue.Engine
	Hub    *hub.Hub

	closeFeed func()
}

// Close 释放数据库和 Redis 连接
func (c *Components) Close() {
	if c.closeFeed != nil {
		c.closeFeed()
	}
	if err := db.Close(c.DB); err != nil {
		logger.Warn("failed to close database", logger.ErrorField(err))
	}
}

// Bootstrap 连接存储和变更通道，并完成表结构迁移。
// 存储连接（含备用连接）失败时返回错误，由调用方决定退出。
func Bootstrap(ctx context.Context, cfg *config.Config) (*Components, error) {
	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}

	feed, closeFeed, err := newFeed(cfg)
	if err != nil {
		db.Close(gdb)
		return nil, err
	}

	store := repository.NewTrackStore(gdb, feed)
	if err := store.AutoMigrate(ctx); err != nil {
		closeFeed()
		db.Close(gdb)
		return nil, err
	}

	engine := queue.NewEngine(store)
	return &Components{
		DB:        gdb,
		Feed:      feed,
		Store:     store,
		Engine:    engine,
		Hub:       hub.New(hub.NewRegistry(), engine.List),
		closeFeed: closeFeed,
	}, nil
}

// newFeed 配置了 Redis 时使用跨进程通道，否则使用进程内通道
func newFeed(cfg *config.Config) (notify.Feed, func(), error) {
	if !cfg.RedisEnabled() {
		logger.Info("REDIS_HOST not set, using in-process change feed")
		return notify.NewLocalFeed(), func() {}, nil
	}

	client, err := db.ConnectRedis(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using Redis change feed",
		logger.String("host", cfg.RedisHost),
		logger.String("channel", notify.DefaultChannel))
	return notify.NewRedisFeed(client, notify.DefaultChannel), func() { client.Close() }, nil
}

// Start initializes and starts the HTTP server.
func Start(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := Bootstrap(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", logger.ErrorField(err))
	}
	defer comps.Close()

	go comps.Hub.Run(ctx)
	go func() {
		if err := comps.Feed.Run(ctx, comps.Hub); err != nil && ctx.Err() == nil {
			logger.Error("change feed stopped", logger.ErrorField(err))
		}
	}()

	if cfg.SweepEnabled {
		sweeper := queue.NewSweeper(comps.Engine, cfg.SweepInterval)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	} else if err := cfg.RequireSharedFeed(); err != nil {
		logger.Warn("sweep disabled without a shared change feed; auto-advance from a separate sweeper will not be pushed to clients",
			logger.ErrorField(err))
	}

	handler := NewTracklistHandler(comps.Engine, comps.Hub, comps.Feed, func(ctx context.Context) error {
		return db.Ping(ctx, comps.DB)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      NewRouter(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logger.ErrorField(err))
	}
	<-comps.Hub.Done()
	logger.Info("server stopped")
}
