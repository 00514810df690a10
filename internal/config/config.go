package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config carries all tunables for dataset generation and the scoring API.
// Values come from the environment (or an optional .env file); the core
// packages never read the environment themselves — everything is passed
// down from here as explicit parameters.
type Config struct {
	Env                 string  `mapstructure:"ENV"`
	Port                string  `mapstructure:"PORT"`
	PatientCount        int     `mapstructure:"PATIENT_COUNT"`
	MinTests            int     `mapstructure:"MIN_TESTS"`
	MaxTests            int     `mapstructure:"MAX_TESTS"`
	TimeRangeMonths     int     `mapstructure:"TIME_RANGE_MONTHS"`
	AbnormalProbability float64 `mapstructure:"ABNORMAL_PROBABILITY"`
	OutputDir           string  `mapstructure:"OUTPUT_DIR"`
	GenerateSummary     bool    `mapstructure:"GENERATE_SUMMARY"`
	Seed                int64   `mapstructure:"SEED"`
	Workers             int     `mapstructure:"WORKERS"`
	ModelThreshold      float64 `mapstructure:"MODEL_THRESHOLD"`
	ReportsDir          string  `mapstructure:"REPORTS_DIR"`
	RateLimitRPS        float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int     `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit           string  `mapstructure:"BODY_LIMIT"`
	RequestTimeoutSecs  int     `mapstructure:"REQUEST_TIMEOUT_SECS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8000")
	v.SetDefault("PATIENT_COUNT", 100)
	v.SetDefault("MIN_TESTS", 3)
	v.SetDefault("MAX_TESTS", 8)
	v.SetDefault("TIME_RANGE_MONTHS", 12)
	v.SetDefault("ABNORMAL_PROBABILITY", 0.3)
	v.SetDefault("OUTPUT_DIR", "./data")
	v.SetDefault("GENERATE_SUMMARY", true)
	v.SetDefault("SEED", 0) // 0 = time-based seed
	v.SetDefault("WORKERS", 4)
	v.SetDefault("MODEL_THRESHOLD", 0.5)
	v.SetDefault("REPORTS_DIR", "./reports")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT_SECS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("PORT")
	v.BindEnv("PATIENT_COUNT")
	v.BindEnv("MIN_TESTS")
	v.BindEnv("MAX_TESTS")
	v.BindEnv("TIME_RANGE_MONTHS")
	v.BindEnv("ABNORMAL_PROBABILITY")
	v.BindEnv("OUTPUT_DIR")
	v.BindEnv("GENERATE_SUMMARY")
	v.BindEnv("SEED")
	v.BindEnv("WORKERS")
	v.BindEnv("MODEL_THRESHOLD")
	v.BindEnv("REPORTS_DIR")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("REQUEST_TIMEOUT_SECS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects out-of-domain configuration before any generation
// starts. The core packages assume already-validated inputs; this is the
// single gate.
func (c *Config) Validate() error {
	if c.PatientCount < 1 {
		return fmt.Errorf("PATIENT_COUNT must be >= 1, got %d", c.PatientCount)
	}
	if c.MinTests < 1 {
		return fmt.Errorf("MIN_TESTS must be >= 1, got %d", c.MinTests)
	}
	if c.MaxTests < c.MinTests {
		return fmt.Errorf("MAX_TESTS (%d) must be >= MIN_TESTS (%d)", c.MaxTests, c.MinTests)
	}
	if c.TimeRangeMonths < 1 {
		return fmt.Errorf("TIME_RANGE_MONTHS must be >= 1, got %d", c.TimeRangeMonths)
	}
	if c.AbnormalProbability < 0 || c.AbnormalProbability > 1 {
		return fmt.Errorf("ABNORMAL_PROBABILITY must be in [0, 1], got %v", c.AbnormalProbability)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.ModelThreshold <= 0 || c.ModelThreshold >= 1 {
		return fmt.Errorf("MODEL_THRESHOLD must be in (0, 1), got %v", c.ModelThreshold)
	}
	if c.ReportsDir == "" {
		return fmt.Errorf("REPORTS_DIR is required")
	}
	if c.RequestTimeoutSecs < 1 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECS must be >= 1, got %d", c.RequestTimeoutSecs)
	}
	return nil
}
