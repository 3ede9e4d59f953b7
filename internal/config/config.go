package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath     string        `mapstructure:"static_path" validate:"required"`
	ReadLimit      int64         `mapstructure:"read_limit" validate:"gt=0"`
	PingPeriod     time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	Secret         string        `mapstructure:"secret" validate:"required"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string        `mapstructure:"log_format" validate:"oneof=console json"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ConnectLimit   int           `mapstructure:"connect_limit" validate:"min=1"`
	ConnectWindow  time.Duration `mapstructure:"connect_window" validate:"gt=0"`

	Room    RoomConfig    `mapstructure:"room"`
	Storage StorageConfig `mapstructure:"storage"`
	Events  EventsConfig  `mapstructure:"events"`
}

type RoomConfig struct {
	TTL             time.Duration `mapstructure:"ttl" validate:"gt=0"`
	CleanupWindow   time.Duration `mapstructure:"cleanup_window" validate:"gt=0,ltfield=TTL"`
	MaxParticipants int           `mapstructure:"max_participants" validate:"min=1"`
	AssignRoles     bool          `mapstructure:"assign_roles"`
	RelaySignaling  bool          `mapstructure:"relay_signaling"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=memory sqlite redis"`
	SQLitePath    string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// EventsConfig leaves publication disabled while NATSURL is empty.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("connect_limit", 20)
	v.SetDefault("connect_window", "1m")

	v.SetDefault("room.ttl", "1h")
	v.SetDefault("room.cleanup_window", "5m")
	v.SetDefault("room.max_participants", 2)
	v.SetDefault("room.assign_roles", true)
	v.SetDefault("room.relay_signaling", true)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "./data/pairwise.db")
	v.SetDefault("storage.redis_addr", "")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "pairwise:")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "pairwise")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml (or --config),
// then PAIRWISE_* environment variables and command line flags.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	flags := pflag.NewFlagSet("pairwise", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to a YAML config file")
	flags.Int("port", 8080, "HTTP listen port")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	fileName := *configFile
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("PAIRWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("port", flags.Lookup("port")); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("storage", cfg.Storage.Driver).
		Msg("config ready")
	return &cfg, nil
}
