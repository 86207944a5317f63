package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"portfolio-analytics/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Regime      RegimeConfig      `mapstructure:"regime"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig governs the rolling-beta cache and its background sweep.
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	BackgroundOnly  bool          `mapstructure:"background_only"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// RiskConfig parameterises the risk metrics calculator.
type RiskConfig struct {
	RiskFreeRate  float64 `mapstructure:"risk_free_rate"`
	TradingDays   int     `mapstructure:"trading_days"`
	VaRConfidence float64 `mapstructure:"var_confidence"`
	BetaMinPoints int     `mapstructure:"beta_min_points"`
}

// RegimeConfig parameterises the market regime detector.
type RegimeConfig struct {
	BenchmarkTicker string `mapstructure:"benchmark_ticker"`
	LookbackDays    int    `mapstructure:"lookback_days"`
}

// PerformanceConfig bounds the IRR root-finder.
type PerformanceConfig struct {
	IRRTolerance     float64 `mapstructure:"irr_tolerance"`
	IRRMaxIterations int     `mapstructure:"irr_max_iterations"`
	IRRMinRate       float64 `mapstructure:"irr_min_rate"`
	IRRMaxRate       float64 `mapstructure:"irr_max_rate"`
}

// CorrelationConfig tunes the pairwise correlation engine.
type CorrelationConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	LookbackDays int           `mapstructure:"lookback_days"`
	MinOverlap   int           `mapstructure:"min_overlap"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RISKENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "riskengine")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("cache.ttl", "6h")
	v.SetDefault("cache.background_only", false)
	v.SetDefault("cache.sweep_interval", "6h")
	v.SetDefault("cache.advisory_lock_key", int64(0x52455343))
	v.SetDefault("cache.startup_delay", "0s")

	v.SetDefault("risk.risk_free_rate", 0.02)
	v.SetDefault("risk.trading_days", 252)
	v.SetDefault("risk.var_confidence", 0.05)
	v.SetDefault("risk.beta_min_points", 20)

	v.SetDefault("regime.benchmark_ticker", "SPY")
	v.SetDefault("regime.lookback_days", 30)

	v.SetDefault("performance.irr_tolerance", 1e-6)
	v.SetDefault("performance.irr_max_iterations", 100)
	v.SetDefault("performance.irr_min_rate", -0.99)
	v.SetDefault("performance.irr_max_rate", 10.0)

	v.SetDefault("correlation.timeout", "5m")
	v.SetDefault("correlation.lookback_days", 252)
	v.SetDefault("correlation.min_overlap", 2)

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than zero")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache.sweep_interval must be greater than zero")
	}
	if c.Risk.TradingDays <= 0 {
		return fmt.Errorf("risk.trading_days must be greater than zero")
	}
	if c.Risk.VaRConfidence <= 0 || c.Risk.VaRConfidence >= 1 {
		return fmt.Errorf("risk.var_confidence must be in (0, 1)")
	}
	if c.Risk.BetaMinPoints < 2 {
		return fmt.Errorf("risk.beta_min_points must be at least 2")
	}
	if c.Regime.LookbackDays <= 0 {
		return fmt.Errorf("regime.lookback_days must be greater than zero")
	}
	if c.Performance.IRRTolerance <= 0 {
		return fmt.Errorf("performance.irr_tolerance must be greater than zero")
	}
	if c.Performance.IRRMaxIterations <= 0 {
		return fmt.Errorf("performance.irr_max_iterations must be greater than zero")
	}
	if c.Performance.IRRMinRate >= c.Performance.IRRMaxRate {
		return fmt.Errorf("performance.irr_min_rate must be below performance.irr_max_rate")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
