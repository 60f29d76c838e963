package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "goregime/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPipelineConfig(), cfg.Pipeline)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.RequestTimeout)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Database.AutoMigrate)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GOREGIME_PIPELINE_MAX_REGIMES", "3")
	t.Setenv("GOREGIME_PIPELINE_OUTLIER_METHOD", "zscore")
	t.Setenv("GOREGIME_CACHE_TTL", "90s")
	t.Setenv("GOREGIME_DATABASE_AUTO_MIGRATE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pipeline.MaxRegimes)
	assert.Equal(t, "zscore", cfg.Pipeline.OutlierMethod)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goregime.yaml")
	content := []byte("pipeline:\n  ar_order: 2\n  normalization_method: robust\nserver:\n  port: \"9090\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.AROrder)
	assert.Equal(t, "robust", cfg.Pipeline.NormalizationMethod)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown outlier method", func(c *Config) { c.Pipeline.OutlierMethod = "winsor" }},
		{"single regime", func(c *Config) { c.Pipeline.MaxRegimes = 1 }},
		{"redis without address", func(c *Config) { c.Cache.Backend = "redis" }},
		{"database without url", func(c *Config) { c.Database.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
		})
	}
}

func TestFingerprintMap_TracksOutputSettings(t *testing.T) {
	p := DefaultPipelineConfig()
	m := p.FingerprintMap()
	assert.Equal(t, 5, m["max_regimes"])
	assert.NotContains(t, m, "fit_timeout")
	assert.NoError(t, ValidatePipeline(p))
}
