package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量覆盖前缀，如 SOUNDSTREAM_AUDIO_COMPLEXITY
const EnvPrefix = "SOUNDSTREAM"

// Config 是客户端配置结构（与 YAML 文件结构一致）
type Config struct {
	System struct {
		DeviceID string `mapstructure:"device_id"`
		ClientID string `mapstructure:"client_id"`

		Network struct {
			Transport string           `mapstructure:"transport"`
			Websocket *WebsocketConfig `mapstructure:"websocket"`
		} `mapstructure:"network"`
	} `mapstructure:"system"`

	Reconnect struct {
		InitialDelay time.Duration `mapstructure:"initial_delay"`
		MaxDelay     time.Duration `mapstructure:"max_delay"`
	} `mapstructure:"reconnect"`

	Audio struct {
		SampleRate  int    `mapstructure:"sample_rate"`
		Complexity  int    `mapstructure:"complexity"`
		Bitrate     int    `mapstructure:"bitrate"`
		Application string `mapstructure:"application"`
		Backend     string `mapstructure:"backend"`
		EventBuffer int    `mapstructure:"event_buffer"`
	} `mapstructure:"audio"`

	Permission struct {
		Mode string `mapstructure:"mode"`
	} `mapstructure:"permission"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Listen  string `mapstructure:"listen"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"metrics"`

	Logging struct {
		Level    string   `mapstructure:"level"`
		Format   string   `mapstructure:"format"`
		Outputs  []string `mapstructure:"outputs"`
		ShowLogs bool     `mapstructure:"show_logs"`
	} `mapstructure:"logging"`
}

type WebsocketConfig struct {
	URL             string        `mapstructure:"url"`
	AccessToken     string        `mapstructure:"access_token"`
	ProtocolVersion int           `mapstructure:"protocol_version"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// SetDefaults 注册所有配置项的默认值，环境变量覆盖依赖这些键
func SetDefaults(v *viper.Viper) {
	v.SetDefault("system.device_id", "")
	v.SetDefault("system.client_id", "")
	v.SetDefault("system.network.transport", "websocket")
	v.SetDefault("system.network.websocket.url", "ws://127.0.0.1:8000/soundstream/v1/")
	v.SetDefault("system.network.websocket.access_token", "")
	v.SetDefault("system.network.websocket.protocol_version", 1)
	v.SetDefault("system.network.websocket.ping_interval", "30s")
	v.SetDefault("system.network.websocket.write_timeout", "5s")

	v.SetDefault("reconnect.initial_delay", "1s")
	v.SetDefault("reconnect.max_delay", "30s")

	v.SetDefault("audio.sample_rate", audio.SampleRate)
	v.SetDefault("audio.complexity", audio.DefaultComplexity)
	v.SetDefault("audio.bitrate", audio.BitrateMax)
	v.SetDefault("audio.application", string(audio.AppAudio))
	v.SetDefault("audio.backend", string(audio.BackendOpus))
	v.SetDefault("audio.event_buffer", DefaultEventBuffer)

	v.SetDefault("permission.mode", PermissionGrant)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stdout"})
	v.SetDefault("logging.show_logs", false)
}

// LoadConfig 读取配置文件。configPath 为空时按默认路径搜索，
// 找不到配置文件时只使用默认值和环境变量。
func LoadConfig(v *viper.Viper, configPath string) (Config, error) {
	SetDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		// 使用命令行指定的路径
		v.SetConfigFile(configPath)
	} else {
		// 默认多路径搜索
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/soundstream")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SessionConfig 转换为编解码会话配置。采样率固定，配置中的其他取值
// 由 Validate 拒绝。
func (c Config) SessionConfig() audio.SessionConfig {
	s := audio.DefaultSessionConfig()
	s.Complexity = c.Audio.Complexity
	s.Bitrate = c.Audio.Bitrate
	if c.Audio.Application != "" {
		s.Application = audio.Application(c.Audio.Application)
	}
	if c.Audio.Backend != "" {
		s.Backend = audio.Backend(c.Audio.Backend)
	}
	return s
}

func (c Config) Validate() error {
	if c.Audio.SampleRate != 0 && c.Audio.SampleRate != audio.SampleRate {
		return fmt.Errorf("%w: audio.sample_rate %d (only %d supported)", ErrInvalidConfig, c.Audio.SampleRate, audio.SampleRate)
	}
	if err := c.SessionConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Permission.Mode {
	case "", PermissionGrant, PermissionDeny, PermissionPrompt:
	default:
		return fmt.Errorf("%w: permission.mode %q", ErrInvalidConfig, c.Permission.Mode)
	}
	if c.Reconnect.MaxDelay > 0 && c.Reconnect.InitialDelay > c.Reconnect.MaxDelay {
		return fmt.Errorf("%w: reconnect.initial_delay exceeds max_delay", ErrInvalidConfig)
	}
	return nil
}
