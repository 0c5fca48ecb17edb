// Package config loads process configuration from reach-api.yaml, REACH_*
// environment variables and defaults, plus the species and hatch documents
// the scoring engines run on. Configuration is read once at startup; changes
// require a restart.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/driftwise/reach-api/internal/domain"
	"github.com/driftwise/reach-api/internal/logging"
	"github.com/driftwise/reach-api/internal/nwm"
	"github.com/driftwise/reach-api/internal/weather"
)

// Config is the full environment configuration shared by both binaries.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Archive   nwm.FetchConfig `mapstructure:"archive"`
	Weather   weather.Config  `mapstructure:"weather"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retention RetentionConfig `mapstructure:"retention"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Thermal   ThermalConfig   `mapstructure:"thermal"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Logging   logging.Config  `mapstructure:"logging"`
}

// ServerConfig tunes the query API binary.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RequestTimeout int      `mapstructure:"request_timeout_sec"`
}

// DatabaseConfig is the store connection.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	Domain               string        `mapstructure:"domain"` // geographic domain id, e.g. "conus"
	JobTimeout           time.Duration `mapstructure:"job_timeout"`
	BatchSize            int           `mapstructure:"batch_size"`
	BatchTimeout         time.Duration `mapstructure:"batch_timeout"`
	BatchRetries         int           `mapstructure:"batch_retries"`
	ExpectedReaches      int           `mapstructure:"expected_reaches"`
	CountTolerance       float64       `mapstructure:"count_tolerance"`
	MalformedAlertAfter  int           `mapstructure:"malformed_alert_after"`
	ShortForecastOffsets []int         `mapstructure:"short_forecast_offsets"`
	MediumBlendOffsets   []int         `mapstructure:"medium_blend_offsets"`
}

// RetentionConfig bounds how long time-series rows are kept.
type RetentionConfig struct {
	HydroDays   int    `mapstructure:"hydro_days"`
	WeatherDays int    `mapstructure:"weather_days"`
	LogDays     int    `mapstructure:"log_days"`
	Schedule    string `mapstructure:"schedule"` // cron spec
}

// ScoringConfig tunes the metric engines that take parameters.
type ScoringConfig struct {
	VariabilityWindow time.Duration    `mapstructure:"variability_window"`
	RisingLimb        RisingLimbConfig `mapstructure:"rising_limb"`
	HistoryWindow     time.Duration    `mapstructure:"history_window"` // analysis lookback for limb detection
	WeatherMaxAge     time.Duration    `mapstructure:"weather_max_age"`
}

// RisingLimbConfig mirrors domain.RisingLimbParams for the config file.
type RisingLimbConfig struct {
	MinSlope    float64       `mapstructure:"min_slope"`
	MinDuration int           `mapstructure:"min_duration"`
	Weak        float64       `mapstructure:"weak"`
	Moderate    float64       `mapstructure:"moderate"`
	Strong      float64       `mapstructure:"strong"`
	MaxGap      time.Duration `mapstructure:"max_gap"`
}

// Params converts the config block into detector parameters.
func (c RisingLimbConfig) Params() domain.RisingLimbParams {
	return domain.RisingLimbParams{
		MinSlope:    c.MinSlope,
		MinDuration: c.MinDuration,
		Weak:        c.Weak,
		Moderate:    c.Moderate,
		Strong:      c.Strong,
		MaxGap:      c.MaxGap,
	}
}

// ThermalConfig mirrors domain.ThermalParams for the config file. Regions
// running at unusual elevations override these; the defaults are the
// mid-latitude calibration.
type ThermalConfig struct {
	Alpha float64 `mapstructure:"alpha"`
	Mu    float64 `mapstructure:"mu"`
	Gamma float64 `mapstructure:"gamma"`
	Beta  float64 `mapstructure:"beta"`
	KGw   float64 `mapstructure:"k_gw"`
	TGw   float64 `mapstructure:"t_gw"`
	ZRef  float64 `mapstructure:"z_ref"`
}

// Params converts the config block into thermal parameters.
func (c ThermalConfig) Params() domain.ThermalParams {
	return domain.ThermalParams{
		Alpha: c.Alpha,
		Mu:    c.Mu,
		Gamma: c.Gamma,
		Beta:  c.Beta,
		KGw:   c.KGw,
		TGw:   c.TGw,
		ZRef:  c.ZRef,
	}
}

// ReferenceConfig locates the one-time reference bulk-load inputs.
type ReferenceConfig struct {
	Dir string `mapstructure:"dir"`
}

// DocumentsConfig locates the species and hatch configuration documents.
type DocumentsConfig struct {
	SpeciesDir string `mapstructure:"species_dir"`
	HatchesDir string `mapstructure:"hatches_dir"`
}

// Load reads reach-api.yaml (searched in /etc/reach-api, $HOME/.reach-api and
// the working directory), applies REACH_* environment overrides and defaults,
// and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("reach-api")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/reach-api/")
	v.AddConfigPath("$HOME/.reach-api")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("REACH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file; defaults and environment carry the run.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_sec", 30)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("archive.base_url", "")
	v.SetDefault("archive.cache_dir", "./cache/nwm")
	v.SetDefault("archive.max_retries", 4)
	v.SetDefault("archive.backoff_initial", 2*time.Second)
	v.SetDefault("archive.backoff_max", time.Minute)
	v.SetDefault("archive.timeout", 2*time.Minute)

	v.SetDefault("weather.base_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("weather.horizon_days", 7)
	v.SetDefault("weather.schedule", "10 */6 * * *")
	v.SetDefault("weather.concurrency", 4)
	v.SetDefault("weather.timeout", 30*time.Second)

	v.SetDefault("ingest.domain", "conus")
	v.SetDefault("ingest.job_timeout", 10*time.Minute)
	v.SetDefault("ingest.batch_size", 5000)
	v.SetDefault("ingest.batch_timeout", 30*time.Second)
	v.SetDefault("ingest.batch_retries", 3)
	v.SetDefault("ingest.expected_reaches", 0) // 0 disables the size check
	v.SetDefault("ingest.count_tolerance", 0.05)
	v.SetDefault("ingest.malformed_alert_after", 3)
	v.SetDefault("ingest.short_forecast_offsets", []int{1, 18})
	v.SetDefault("ingest.medium_blend_offsets", []int{24})

	v.SetDefault("retention.hydro_days", 30)
	v.SetDefault("retention.weather_days", 14)
	v.SetDefault("retention.log_days", 90)
	v.SetDefault("retention.schedule", "30 2 * * *")

	v.SetDefault("scoring.variability_window", 18*time.Hour)
	v.SetDefault("scoring.history_window", 24*time.Hour)
	v.SetDefault("scoring.weather_max_age", 3*time.Hour)
	v.SetDefault("scoring.rising_limb.min_slope", 0.5)
	v.SetDefault("scoring.rising_limb.min_duration", 3)
	v.SetDefault("scoring.rising_limb.weak", 1.0)
	v.SetDefault("scoring.rising_limb.moderate", 5.0)
	v.SetDefault("scoring.rising_limb.strong", 15.0)
	v.SetDefault("scoring.rising_limb.max_gap", 3*time.Hour)

	thermal := domain.DefaultThermalParams()
	v.SetDefault("thermal.alpha", thermal.Alpha)
	v.SetDefault("thermal.mu", thermal.Mu)
	v.SetDefault("thermal.gamma", thermal.Gamma)
	v.SetDefault("thermal.beta", thermal.Beta)
	v.SetDefault("thermal.k_gw", thermal.KGw)
	v.SetDefault("thermal.t_gw", thermal.TGw)
	v.SetDefault("thermal.z_ref", thermal.ZRef)

	v.SetDefault("reference.dir", "./data/reference")
	v.SetDefault("documents.species_dir", "./config/species")
	v.SetDefault("documents.hatches_dir", "./config/hatches")

	logDefaults := logging.DefaultConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.file_path", logDefaults.FilePath)
	v.SetDefault("logging.max_size_mb", logDefaults.MaxSizeMB)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age_days", logDefaults.MaxAgeDays)
	v.SetDefault("logging.compress", logDefaults.Compress)
}

// Validate rejects configurations neither binary should run with. Fields
// required by only one binary (database URL, archive base URL) are checked
// by that binary at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Weather.HorizonDays < 1 || c.Weather.HorizonDays > 16 {
		return fmt.Errorf("weather.horizon_days %d outside [1, 16]", c.Weather.HorizonDays)
	}
	if c.Weather.Concurrency < 1 {
		return fmt.Errorf("weather.concurrency must be at least 1")
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be at least 1")
	}
	if c.Ingest.JobTimeout <= 0 {
		return fmt.Errorf("ingest.job_timeout must be positive")
	}
	if c.Ingest.CountTolerance < 0 || c.Ingest.CountTolerance > 1 {
		return fmt.Errorf("ingest.count_tolerance %g outside [0, 1]", c.Ingest.CountTolerance)
	}
	for _, h := range c.Ingest.ShortForecastOffsets {
		if h < 1 {
			return fmt.Errorf("ingest.short_forecast_offsets: offset %d below 1 (hour 0 is never a forecast)", h)
		}
	}
	for _, h := range c.Ingest.MediumBlendOffsets {
		if h < 1 {
			return fmt.Errorf("ingest.medium_blend_offsets: offset %d below 1", h)
		}
	}
	if c.Retention.HydroDays < 1 || c.Retention.WeatherDays < 1 || c.Retention.LogDays < 1 {
		return fmt.Errorf("retention windows must be at least 1 day")
	}
	if c.Scoring.VariabilityWindow <= 0 {
		return fmt.Errorf("scoring.variability_window must be positive")
	}
	if err := c.Scoring.RisingLimb.Params().Validate(); err != nil {
		return fmt.Errorf("scoring.rising_limb: %w", err)
	}
	return nil
}
