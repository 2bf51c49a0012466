package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	nest "github.com/dep2p/go-nest"
	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/pkg/lib/log"
)

var logger = log.Logger("nest/cmd")

// 通用参数
var (
	configFile   string
	identityFile string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:           "nest",
	Short:         "nest 节点命令行",
	Long:          `nest 运行一个带文件块传输、直发消息与节点广告协议的 P2P 节点`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "配置文件路径（.json / .yaml）")
	flags.StringVar(&identityFile, "identity", "", "身份密钥文件路径，不存在时生成")
	flags.StringVar(&logLevel, "log-level", "", "日志级别 debug/info/warn/error（覆盖配置）")
	flags.StringVar(&logFormat, "log-format", "", "日志格式 text/json（覆盖配置）")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置: %w", err)
		}
		cfg = loaded
	}
	if identityFile != "" {
		cfg.Identity.KeyFile = identityFile
		cfg.Identity.AutoGenerate = true
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func setupLogging() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log.Setup(os.Stderr, log.Format(cfg.Log.Format), level)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), nest.VersionInfo())
	},
}
