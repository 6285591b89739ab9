package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fileident/pkg/app"
	"fileident/pkg/config"
	"fileident/pkg/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	FI *app.App
	// Svc 是建立在 FI 之上的识别服务
	Svc *service.IdentifyService
)

var rootCmd = &cobra.Command{
	Use:   "fi",
	Short: "fileident: content identification and deduplication for indexed locations",
	// main 统一打印错误并决定退出码
	SilenceErrors: true,
	SilenceUsage:  true,
	// 【关键】PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		FI, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize fileident: %w", err)
		}
		Svc = service.NewIdentifyService(FI)
		return nil
	},
}

// Execute 是入口
// SIGINT / SIGTERM 取消根上下文，识别任务在下一个步骤边界停下并保存断点
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 子命令失败时 PostRun 不会执行，在这里统一释放
	defer func() {
		if FI != nil {
			FI.Close()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.fi/config.yaml or $HOME/.fi/config.yaml)")

	// 2. 常用配置项也可以用参数覆盖，并绑定到 Viper
	rootCmd.PersistentFlags().String("db", "", "Path of the sqlite index database")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	bindFlag("database.path", "db")
	bindFlag("log.level", "log-level")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		fmt.Println("Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

// pathArg 返回第一个位置参数，缺省为当前目录
func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
