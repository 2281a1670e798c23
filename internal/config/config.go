package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the service configuration. Every key can be overridden from the
// environment as SBL_<SECTION>_<KEY>, e.g. SBL_POSTGRES_DSN.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	ClickHouse   ClickHouseConfig   `mapstructure:"clickhouse"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Simulation   SimulationConfig   `mapstructure:"simulation"`
	Prediction   PredictionConfig   `mapstructure:"prediction"`
	PaperTrading PaperTradingConfig `mapstructure:"paper_trading"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// StorageConfig selects the backend. UseMemory keeps everything in process.
type StorageConfig struct {
	UseMemory bool `mapstructure:"use_memory"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type SimulationConfig struct {
	MaxConcurrentBots  int           `mapstructure:"max_concurrent_bots"`
	SourceTimeout      time.Duration `mapstructure:"source_timeout"`
	HistoryWindow      int           `mapstructure:"history_window"`
	ResultWriteRetries int           `mapstructure:"result_write_retries"`
	ArchiveSignals     bool          `mapstructure:"archive_signals"`
}

type PredictionConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// PaperTradingConfig drives the cron-scheduled paper trader.
// Schedule uses the six-field cron syntax (with seconds).
type PaperTradingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	SpecFile string `mapstructure:"spec_file"`
	Interval string `mapstructure:"interval"`
}

// Load reads the YAML file at path, if any, on top of defaults and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SBL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("storage.use_memory", true)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("simulation.max_concurrent_bots", 4)
	v.SetDefault("simulation.source_timeout", "2s")
	v.SetDefault("simulation.history_window", 200)
	v.SetDefault("simulation.result_write_retries", 3)
	v.SetDefault("simulation.archive_signals", true)
	v.SetDefault("prediction.base_url", "")
	v.SetDefault("prediction.timeout", "5s")
	v.SetDefault("prediction.max_retries", 3)
	v.SetDefault("prediction.retry_delay", "200ms")
	v.SetDefault("paper_trading.enabled", false)
	v.SetDefault("paper_trading.schedule", "0 * * * * *")
	v.SetDefault("paper_trading.spec_file", "")
	v.SetDefault("paper_trading.interval", "1m")
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	if !c.Storage.UseMemory && (c.Postgres.DSN == "" || c.ClickHouse.DSN == "") {
		return errors.New("postgres.dsn and clickhouse.dsn are required unless storage.use_memory is set")
	}
	if c.Simulation.MaxConcurrentBots < 1 {
		return errors.New("simulation.max_concurrent_bots must be >= 1")
	}
	if c.PaperTrading.Enabled && c.PaperTrading.SpecFile == "" {
		return errors.New("paper_trading.spec_file is required when paper trading is enabled")
	}
	return nil
}
