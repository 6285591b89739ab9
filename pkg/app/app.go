// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fileident/pkg/job"
	"fileident/pkg/meta"
	"fileident/pkg/metrics"
	"fileident/pkg/processor"
	"fileident/pkg/storage"
	"fileident/pkg/storage/cache"
	"fileident/pkg/storage/disk"
	"fileident/pkg/storage/s3"
	"fileident/pkg/synclog"
	"fileident/pkg/tasks"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有"单例"服务
type App struct {
	DB          *meta.DB
	Repo        *meta.Repository
	Objects     processor.Store
	Checkpoints storage.Store
	Sync        *synclog.Manager
	Pool        *tasks.Pool
	Metrics     *metrics.IdentifierMetrics
	Logger      *slog.Logger

	cache *cache.CachedObjects
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	logger := initLogger()

	// 1. 元数据库
	db, err := meta.NewDB(ctx, dbConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	repo := meta.NewRepository(db)

	// 2. 断点存储
	checkpoints, err := initStore(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init checkpoint storage: %w", err)
	}

	a := &App{
		DB:          db,
		Repo:        repo,
		Objects:     repo,
		Checkpoints: checkpoints,
		Sync:        synclog.NewManager(viper.GetString("sync.instance")),
		Logger:      logger,
	}

	// 3. 可选的 Redis 缓存
	if url := viper.GetString("cache.redis_url"); url != "" {
		c, err := cache.NewCachedObjects(repo, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("cache.ttl"),
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to init cache: %w", err)
		}
		a.cache = c
		a.Objects = c
	}

	// 4. 可选的指标
	if viper.GetBool("metrics.enabled") {
		metrics.InitRegistry()
		a.Metrics = metrics.NewIdentifierMetrics()
	}

	// 5. 工作池放在最后，前面失败时不需要关闭它
	a.Pool = tasks.NewPool(viper.GetInt("identifier.workers"))
	return a, nil
}

// JobDeps 组装识别任务需要的依赖
func (a *App) JobDeps() job.Deps {
	return job.Deps{
		Repo:        a.Repo,
		Objects:     a.Objects,
		Sync:        a.Sync,
		Dispatcher:  a.Pool,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Concurrency: viper.GetInt("identifier.concurrency"),
	}
}

// Close 按依赖的反方向释放资源
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
	}
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func dbConfig() meta.Config {
	return meta.Config{
		Driver:   viper.GetString("database.driver"),
		Path:     viper.GetString("database.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.name"),
		SSLMode:  viper.GetString("database.sslmode"),
	}
}

// initStore 根据 checkpoint.type 选择断点存储后端
func initStore(ctx context.Context) (storage.Store, error) {
	switch t := viper.GetString("checkpoint.type"); t {
	case "", "disk":
		path := viper.GetString("checkpoint.path")
		if path == "" {
			return nil, fmt.Errorf("checkpoint path not set")
		}
		return disk.NewAdapter(path)
	case "s3":
		bucket := viper.GetString("checkpoint.s3.bucket")
		if bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("checkpoint.s3.endpoint"),
			Region:          viper.GetString("checkpoint.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("checkpoint.s3.access_key"),
			SecretAccessKey: viper.GetString("checkpoint.s3.secret_key"),
		})
	default:
		return nil, fmt.Errorf("unsupported checkpoint storage type: %s", t)
	}
}

// initLogger 按 log.level / log.format 构造 slog.Logger 并设为默认
func initLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(viper.GetString("log.format"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
