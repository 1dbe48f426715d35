package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string
	envFile    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trader",
		Short:         "多腿价差执行与网格风控引擎",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/spreadgrid.yaml", "配置文件路径")
	root.PersistentFlags().StringVar(&envFile, "env", "", ".env 文件，默认取 system.env_file")

	root.AddCommand(newRunCmd(), newBacktestCmd(), newGenTicksCmd(), newStateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trader %s (%s)\n", version, commit)
		},
	}
}

// loadConfig 读取 YAML，再用 .env / 环境变量覆盖连接参数，最后初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	file := envFile
	if file == "" {
		file = cfg.System.EnvFile
	}
	if file != "" {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env %s: %w", file, err)
		}
	}
	applyEnv(cfg)

	if err := logger.Init(cfg.System.Log.Logger()); err != nil {
		return nil, err
	}
	logger.Infof("[main] config loaded: strategy=%s spreads=%v symbols=%v",
		cfg.Strategy.Name, cfg.SpreadNames(), cfg.Symbols())
	return cfg, nil
}

// applyEnv 环境变量覆盖：SPREADGRID_NATS_URL / SPREADGRID_API_PORT / SPREADGRID_GRPC_PORT / SPREADGRID_LOG_LEVEL
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("SPREADGRID_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SPREADGRID_LOG_LEVEL"); v != "" {
		cfg.System.Log.Level = v
	}
	if port, err := strconv.Atoi(os.Getenv("SPREADGRID_API_PORT")); err == nil && port > 0 {
		cfg.System.APIPort = port
	}
	if port, err := strconv.Atoi(os.Getenv("SPREADGRID_GRPC_PORT")); err == nil && port > 0 {
		cfg.System.GRPCPort = port
	}
}
