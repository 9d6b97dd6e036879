package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jukebox/config"
	applog "jukebox/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect 建立存储连接。主 DSN 在超时内不可达时改用 DB_FALLBACK_DSN，
// 两者都失败则返回错误，由调用方决定退出进程。
func Connect(cfg *config.Config) (*gorm.DB, error) {
	driver := strings.ToLower(cfg.DBDriver)
	if driver == "sqlite" {
		return OpenSQLite(cfg.SQLitePath)
	}
	if driver != "mysql" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	primary := MySQLDSN(cfg)
	gdb, err := openMySQL(primary, cfg.DBConnectTimeout)
	if err == nil {
		applog.Info("connected to store", applog.String("target", "primary"))
		return gdb, nil
	}
	applog.Warn("primary store connection failed", applog.ErrorField(err))

	if cfg.DBFallbackDSN == "" {
		return nil, fmt.Errorf("primary store unreachable and no fallback configured: %w", err)
	}

	gdb, fbErr := openMySQL(cfg.DBFallbackDSN, cfg.DBConnectTimeout)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback store unreachable: %w (primary: %v)", fbErr, err)
	}
	applog.Info("connected to store", applog.String("target", "fallback"))
	return gdb, nil
}

// MySQLDSN builds the primary DSN with a dial timeout so connection attempts are bounded.
func MySQLDSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBConnectTimeout)
}

func openMySQL(dsn string, timeout time.Duration) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return gdb, nil
}

// OpenSQLite 打开 SQLite 存储（单机部署与测试）。":memory:" 时限制为单连接，
// 否则每个连接会看到各自独立的内存库。
func OpenSQLite(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if path != ":memory:" {
		if err := gdb.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}
	return gdb, nil
}

// Close 关闭 GORM 数据库连接
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping 健康检查
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
