package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀：FI_DATABASE_DRIVER 对应 database.driver
const EnvPrefix = "FI"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	if err := setDefaults(); err != nil {
		return err
	}

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.fi -> ~/.fi
		viper.AddConfigPath(".")
		viper.AddConfigPath(".fi")
		viper.AddConfigPath(filepath.Join(home, ".fi"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (FI_DATABASE_HOST 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，默认值和环境变量仍然生效
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		return nil
	}

	fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	return nil
}

func setDefaults() error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	base := filepath.Join(wd, ".fi")

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// 数据库默认值
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", filepath.Join(base, "index.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "fileident")
	viper.SetDefault("database.sslmode", "disable")

	// 识别任务
	viper.SetDefault("identifier.chunk_size", 100)
	viper.SetDefault("identifier.page_size", 100)
	viper.SetDefault("identifier.workers", runtime.NumCPU())
	viper.SetDefault("identifier.concurrency", 8)

	// 同步日志实例 ID，为空时每个进程随机生成
	viper.SetDefault("sync.instance", "")

	// 断点存储
	viper.SetDefault("checkpoint.type", "disk")
	viper.SetDefault("checkpoint.path", filepath.Join(base, "checkpoints"))
	viper.SetDefault("checkpoint.s3.region", "us-east-1")

	// 缓存 (redis_url 为空表示不启用)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	viper.SetDefault("metrics.enabled", false)
	return nil
}
