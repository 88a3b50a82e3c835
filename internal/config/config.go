package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/helmquant/helm/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Strategy StrategyConfig `mapstructure:"strategy"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Data     DataConfig     `mapstructure:"data"`
	Report   ReportConfig   `mapstructure:"report"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type StrategyConfig struct {
	FastPeriod         int     `mapstructure:"fast_period"`
	SlowPeriod         int     `mapstructure:"slow_period"`
	AllocationFraction float64 `mapstructure:"allocation_fraction"`
	MinSize            int64   `mapstructure:"min_size"`
}

type EngineConfig struct {
	StartCash  float64 `mapstructure:"start_cash"`
	Commission float64 `mapstructure:"commission"`
}

type AnalyzerConfig struct {
	RiskFreeRate        float64 `mapstructure:"risk_free_rate"`
	PeriodsPerYear      int     `mapstructure:"periods_per_year"`
	MinAcceptableReturn float64 `mapstructure:"min_acceptable_return"`
}

type DataConfig struct {
	Dir         string   `mapstructure:"dir"`
	Instruments []string `mapstructure:"instruments"`
}

type ReportConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Strategy: StrategyConfig{
			FastPeriod:         20,
			SlowPeriod:         50,
			AllocationFraction: 0.90,
			MinSize:            1,
		},
		Engine: EngineConfig{
			StartCash: 100000,
		},
		Analyzer: AnalyzerConfig{
			PeriodsPerYear: 252,
		},
		Data: DataConfig{
			Dir: "data",
		},
		Report: ReportConfig{
			Type: "localfs",
			Path: "reports",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Strategy validation
	if c.Strategy.FastPeriod < 1 || c.Strategy.SlowPeriod < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("periods must be >= 1, got fast=%d slow=%d", c.Strategy.FastPeriod, c.Strategy.SlowPeriod))
	}
	if c.Strategy.FastPeriod >= c.Strategy.SlowPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fast_period must be shorter than slow_period, got fast=%d slow=%d", c.Strategy.FastPeriod, c.Strategy.SlowPeriod))
	}
	if c.Strategy.AllocationFraction <= 0 || c.Strategy.AllocationFraction > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("allocation_fraction must be in (0, 1], got %f", c.Strategy.AllocationFraction))
	}
	if c.Strategy.MinSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_size must be >= 1, got %d", c.Strategy.MinSize))
	}

	// Engine validation
	if c.Engine.StartCash <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("start_cash must be positive, got %f", c.Engine.StartCash))
	}
	if c.Engine.Commission < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission cannot be negative, got %f", c.Engine.Commission))
	}

	// Analyzer validation
	if c.Analyzer.PeriodsPerYear < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("periods_per_year must be >= 1, got %d", c.Analyzer.PeriodsPerYear))
	}

	// Data validation
	if len(c.Data.Instruments) == 0 {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("at least one instrument required"))
	}

	// Report validation - if S3 selected, check the bucket exists
	switch c.Report.Type {
	case "localfs", "":
	case "s3":
		if c.Report.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when report type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown report type %q", c.Report.Type))
	}

	return nil
}
