package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "DISPATCH"

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	WS       WSConfig       `mapstructure:"ws"`
	Presence PresenceConfig `mapstructure:"presence"`
	Calls    CallsConfig    `mapstructure:"calls"`
	Auth     AuthConfig     `mapstructure:"auth"`
	ICE      ICEConfig      `mapstructure:"ice"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type WSConfig struct {
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	// MessagesPerSecond and Burst bound inbound frames per connection.
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
	// SlowConsumer is "drop" or "kick".
	SlowConsumer string `mapstructure:"slow_consumer"`
}

// PongWait is how long the server waits for a pong before giving up.
func (w WSConfig) PongWait() time.Duration {
	return w.PingPeriod * 10 / 9
}

type PresenceConfig struct {
	CoalesceWindow time.Duration `mapstructure:"coalesce_window"`
}

type CallsConfig struct {
	RingTimeout    time.Duration `mapstructure:"ring_timeout"`
	RejectBusy     bool          `mapstructure:"reject_busy"`
	InitiateLimit  int           `mapstructure:"initiate_limit"`
	InitiateWindow time.Duration `mapstructure:"initiate_window"`
}

type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Secret     string `mapstructure:"secret"`
	TokenParam string `mapstructure:"token_param"`
}

type ICEConfig struct {
	Servers []ICEServer `mapstructure:"servers"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "")

	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.write_timeout", "5s")
	v.SetDefault("ws.send_buffer", 32)
	v.SetDefault("ws.messages_per_second", 20)
	v.SetDefault("ws.burst", 40)
	v.SetDefault("ws.slow_consumer", "drop")

	v.SetDefault("presence.coalesce_window", "250ms")

	v.SetDefault("calls.ring_timeout", "30s")
	v.SetDefault("calls.reject_busy", false)
	v.SetDefault("calls.initiate_limit", 10)
	v.SetDefault("calls.initiate_window", "1m")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_param", "token")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.enabled", true)
}

// Load reads config/config.<CONFIG_ENV>.yaml, or CONFIG_FILE when set,
// applies DISPATCH_* environment overrides and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := os.Getenv("CONFIG_FILE")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.WS.ReadLimit <= 0 {
		errs = append(errs, errors.New("ws.read_limit must be positive"))
	}
	if c.WS.PingPeriod <= 0 {
		errs = append(errs, errors.New("ws.ping_period must be positive"))
	}
	if c.WS.WriteTimeout <= 0 {
		errs = append(errs, errors.New("ws.write_timeout must be positive"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.send_buffer must be positive"))
	}
	if c.WS.MessagesPerSecond < 0 || c.WS.Burst < 0 {
		errs = append(errs, errors.New("ws rate limit must not be negative"))
	}
	if c.WS.MessagesPerSecond > 0 && c.WS.Burst == 0 {
		errs = append(errs, errors.New("ws.burst must be positive when ws.messages_per_second is set"))
	}
	switch c.WS.SlowConsumer {
	case "", "drop", "kick":
	default:
		errs = append(errs, fmt.Errorf("ws.slow_consumer %q: want drop or kick", c.WS.SlowConsumer))
	}
	if c.Presence.CoalesceWindow < 0 {
		errs = append(errs, errors.New("presence.coalesce_window must not be negative"))
	}
	if c.Calls.RingTimeout < 0 {
		errs = append(errs, errors.New("calls.ring_timeout must not be negative"))
	}
	if c.Calls.InitiateLimit < 0 || c.Calls.InitiateWindow < 0 {
		errs = append(errs, errors.New("calls initiate limit must not be negative"))
	}
	if c.Calls.InitiateLimit > 0 && c.Calls.InitiateWindow == 0 {
		errs = append(errs, errors.New("calls.initiate_window must be positive when calls.initiate_limit is set"))
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required when auth is enabled"))
	}
	if _, err := c.ICEServers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// ICEServers returns the servers advertised to browsers. Every URL must be a
// valid stun/turn URI.
func (c *Config) ICEServers() ([]webrtc.ICEServer, error) {
	if len(c.ICE.Servers) == 0 {
		return defaultICEServers, nil
	}
	out := make([]webrtc.ICEServer, 0, len(c.ICE.Servers))
	for i, s := range c.ICE.Servers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("ice.servers[%d]: no urls", i)
		}
		for _, raw := range s.URLs {
			if _, err := stun.ParseURI(raw); err != nil {
				return nil, fmt.Errorf("ice.servers[%d]: %q: %w", i, raw, err)
			}
		}
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out, nil
}
