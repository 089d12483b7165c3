package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	LogFile    string        `mapstructure:"log_file"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// Per-connection inbound message budget.
	MessageRate  float64 `mapstructure:"message_rate"`
	MessageBurst int     `mapstructure:"message_burst"`

	// Chat flood window, applied per session inside a room.
	ChatLimit    int           `mapstructure:"chat_limit"`
	ChatInterval time.Duration `mapstructure:"chat_interval"`

	// Room state knobs.
	SpawnX  float64 `mapstructure:"spawn_x"`
	SpawnY  float64 `mapstructure:"spawn_y"`
	ChatCap int     `mapstructure:"chat_cap"` // 0 keeps full history
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 2567)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("message_rate", 60.0)
	v.SetDefault("message_burst", 120)
	v.SetDefault("chat_limit", 10)
	v.SetDefault("chat_interval", "10s")
	v.SetDefault("spawn_x", 550.0)
	v.SetDefault("spawn_y", 150.0)
	v.SetDefault("chat_cap", 0)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		// Sessions signed with a random secret do not survive a restart.
		cfg.Secret = uuid.NewString()
		log.Warn().Str("module", "config").Msg("no session secret configured, generated an ephemeral one")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}
