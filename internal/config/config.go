package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Comm     CommConfig     `mapstructure:"comm"`
	Links    LinksConfig    `mapstructure:"links"`
	Profiles ProfilesConfig `mapstructure:"register_profiles"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// CommConfig holds the engine-wide comm defaults. Links may override the
// timeout in the catalog.
type CommConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	DefaultRetries int           `mapstructure:"default_retries"`
	ParseRetries   int           `mapstructure:"parse_retries"`
	SelectorTick   time.Duration `mapstructure:"selector_tick"`
	Poll30s        time.Duration `mapstructure:"poll_30s"`
	Poll5m         time.Duration `mapstructure:"poll_5m"`
	// SnapshotInterval is how often device status is saved; zero disables it.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// PollerConfig returns the retry settings for link pollers.
func (c CommConfig) PollerConfig() comm.PollerConfig {
	return comm.PollerConfig{Retries: c.DefaultRetries, ParseRetries: c.ParseRetries}
}

type LinksConfig struct {
	Files []string `mapstructure:"files"`
	// FromDatabase loads the catalog stored in postgres instead of files.
	FromDatabase bool `mapstructure:"from_database"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("comm.default_timeout", "5s")
	v.SetDefault("comm.default_retries", comm.DefaultPollerConfig().Retries)
	v.SetDefault("comm.parse_retries", comm.DefaultPollerConfig().ParseRetries)
	v.SetDefault("comm.selector_tick", "100ms")
	v.SetDefault("comm.poll_30s", "30s")
	v.SetDefault("comm.poll_5m", "5m")
	v.SetDefault("comm.snapshot_interval", "1m")
	v.SetDefault("links.files", []string{"./configs/links.yaml"})
	v.SetDefault("register_profiles.search_paths", []string{"./configs/profiles"})

	// ORC_COMM_DEFAULT_TIMEOUT overrides comm.default_timeout
	v.SetEnvPrefix("ORC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Comm.DefaultRetries < 0 || c.Comm.ParseRetries < 0 {
		return fmt.Errorf("comm retries must not be negative")
	}
	if c.Comm.DefaultTimeout <= 0 {
		return fmt.Errorf("comm.default_timeout must be positive")
	}
	if c.Comm.SelectorTick <= 0 {
		return fmt.Errorf("comm.selector_tick must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
