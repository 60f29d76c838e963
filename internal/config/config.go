package config

import (
	"fmt"
	"strings"
	"time"

	"goregime/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GOREGIME_PIPELINE_MAX_REGIMES
const EnvPrefix = "GOREGIME"

// MinObservations is the smallest table the pipeline accepts
const MinObservations = 10

// Config represents the complete application configuration
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LogLevel string         `mapstructure:"log_level" validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// PipelineConfig holds the numerical settings of the regime pipeline
type PipelineConfig struct {
	MaxRegimes          int           `mapstructure:"max_regimes" validate:"gte=2,lte=8"`
	AROrder             int           `mapstructure:"ar_order" validate:"gte=0,lte=4"`
	MaxIterations       int           `mapstructure:"max_iterations" validate:"gte=10,lte=100000"`
	Tolerance           float64       `mapstructure:"tolerance" validate:"gt=0,lt=1"`
	SignificanceLevel   float64       `mapstructure:"significance_level" validate:"gt=0,lt=1"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
	ValidityThreshold   float64       `mapstructure:"validity_threshold" validate:"gt=0,lte=1"`
	OutlierMethod       string        `mapstructure:"outlier_method" validate:"oneof=iqr zscore density"`
	ImputationMethod    string        `mapstructure:"imputation_method" validate:"oneof=knn interpolate ffill"`
	NormalizationMethod string        `mapstructure:"normalization_method" validate:"oneof=standard robust"`
	TargetColumn        string        `mapstructure:"target_column"`
	FitTimeout          time.Duration `mapstructure:"fit_timeout" validate:"gte=0"`
}

// CacheConfig selects the result cache backend
type CacheConfig struct {
	Backend   string        `mapstructure:"backend" validate:"oneof=none memory redis"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gt=0"`
	RedisAddr string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB   int           `mapstructure:"redis_db" validate:"gte=0"`
	Prefix    string        `mapstructure:"prefix"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port           string        `mapstructure:"port" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
}

// DatabaseConfig holds the optional run-summary store
type DatabaseConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url" validate:"required_if=Enabled true"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// DefaultPipelineConfig returns the defaults used when nothing is configured
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxRegimes:          5,
		AROrder:             1,
		MaxIterations:       1000,
		Tolerance:           1e-6,
		SignificanceLevel:   0.05,
		ConfidenceThreshold: 0.6,
		ValidityThreshold:   0.7,
		OutlierMethod:       "iqr",
		ImputationMethod:    "interpolate",
		NormalizationMethod: "standard",
		FitTimeout:          2 * time.Minute,
	}
}

// Default returns the full default configuration
func Default() *Config {
	return &Config{
		Pipeline: DefaultPipelineConfig(),
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     time.Hour,
			Prefix:  "regime_analysis:",
		},
		Server:   ServerConfig{Port: "8080", RequestTimeout: 2 * time.Minute},
		LogLevel: "INFO",
	}
}

// Load reads configuration from an optional YAML file and GOREGIME_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("pipeline.max_regimes", d.Pipeline.MaxRegimes)
	v.SetDefault("pipeline.ar_order", d.Pipeline.AROrder)
	v.SetDefault("pipeline.max_iterations", d.Pipeline.MaxIterations)
	v.SetDefault("pipeline.tolerance", d.Pipeline.Tolerance)
	v.SetDefault("pipeline.significance_level", d.Pipeline.SignificanceLevel)
	v.SetDefault("pipeline.confidence_threshold", d.Pipeline.ConfidenceThreshold)
	v.SetDefault("pipeline.validity_threshold", d.Pipeline.ValidityThreshold)
	v.SetDefault("pipeline.outlier_method", d.Pipeline.OutlierMethod)
	v.SetDefault("pipeline.imputation_method", d.Pipeline.ImputationMethod)
	v.SetDefault("pipeline.normalization_method", d.Pipeline.NormalizationMethod)
	v.SetDefault("pipeline.target_column", d.Pipeline.TargetColumn)
	v.SetDefault("pipeline.fit_timeout", d.Pipeline.FitTimeout)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.prefix", d.Cache.Prefix)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)
	v.SetDefault("log_level", d.LogLevel)
}

// Validate runs the struct tag rules
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(errors.ConfigInvalid(describe(err)), "configuration validation failed")
	}
	return nil
}

// ValidatePipeline checks only the pipeline section
func ValidatePipeline(p PipelineConfig) error {
	if err := validator.New().Struct(p); err != nil {
		return errors.ConfigInvalid(describe(err))
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// FingerprintMap lists the settings that change analysis output, for cache keys
func (p PipelineConfig) FingerprintMap() map[string]interface{} {
	return map[string]interface{}{
		"max_regimes":          p.MaxRegimes,
		"ar_order":             p.AROrder,
		"max_iterations":       p.MaxIterations,
		"tolerance":            p.Tolerance,
		"significance_level":   p.SignificanceLevel,
		"confidence_threshold": p.ConfidenceThreshold,
		"validity_threshold":   p.ValidityThreshold,
		"outlier_method":       p.OutlierMethod,
		"imputation_method":    p.ImputationMethod,
		"normalization_method": p.NormalizationMethod,
		"target_column":        p.TargetColumn,
	}
}
