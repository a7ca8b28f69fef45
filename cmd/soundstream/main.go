package main

import (
	"fmt"
	"os"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/core"
	"github.com/lisuiheng/soundstream-go/logger"
	"github.com/lisuiheng/soundstream-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "soundstream",
		Short: "Stream 8 kHz Opus audio between the local microphone/speaker and a remote peer",
		Long: `soundstream captures 20 ms frames from the default microphone, encodes them with Opus
and forwards them over a WebSocket connection. Encoded frames received from the peer
are decoded and played on the default output device.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/soundstream/config.yaml)")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging to stdout")

	cmd.AddCommand(runCommand(), loopbackCommand())
	return cmd
}

// setup 加载配置并初始化日志，各子命令共用
func setup(cmd *cobra.Command) (core.Config, error) {
	v := viper.New()
	if err := v.BindPFlag("debug", cmd.Flags().Lookup("debug")); err != nil {
		return core.Config{}, err
	}

	cfg, err := core.LoadConfig(v, configPath)
	if err != nil {
		return core.Config{}, err
	}

	if err := initLogger(v, cfg); err != nil {
		return core.Config{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("Loaded config", "file", used)
	} else {
		logger.Info("No config file found, using defaults")
	}
	return cfg, nil
}

// initLogger 初始化日志系统
func initLogger(v *viper.Viper, cfg core.Config) error {
	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: cfg.Logging.Outputs,
	}

	// 调试模式覆盖配置
	if v.GetBool("debug") || cfg.Logging.ShowLogs {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
	}

	if err := logger.Init(logCfg); err != nil {
		return err
	}
	logger.Debug("Debug logging enabled")
	return nil
}

// newMetrics 未启用指标时返回 nil，所有统计调用都是空操作
func newMetrics(cfg core.Config) (*metrics.Metrics, *prometheus.Registry) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), reg
}

// newStream 按配置组装 SoundStream，使用真实的采集和播放设备
func newStream(cfg core.Config, m *metrics.Metrics) (*core.SoundStream, error) {
	perm, err := core.NewPermission(cfg.Permission.Mode, os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}

	return core.NewSoundStream(core.Options{
		Session:      cfg.SessionConfig(),
		Permission:   perm,
		OpenCapture:  audio.OpenMalgoCapture,
		OpenPlayback: audio.OpenPortAudioPlayback,
		CodecFactory: audio.DefaultCodecFactory{},
		Metrics:      m,
		EventBuffer:  cfg.Audio.EventBuffer,
		Logger:       logger.Logger(),
		Level:        logger.Level(),
	})
}
