package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 180, cfg.Recon.SLAMinutes)
	assert.Equal(t, 0.005, cfg.Recon.PriceTolerance)
	assert.Equal(t, 250, cfg.Recon.EscalateAfterMs)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTolerance(t *testing.T) {
	cfg := Defaults()
	cfg.Recon.PriceTolerance = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Enabled = false
	assert.Error(t, cfg.Validate())

	cfg.S3.Enabled = true
	cfg.S3.Bucket = "recon-archive"
	cfg.S3.Region = "us-east-1"
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RECONBOT_RECON_SLA_MINUTES", "90")
	t.Setenv("RECONBOT_FEED_SYMBOLS", "btcusdt, solusdt")
	t.Setenv("RECONBOT_SERVER_API_KEY", "sekret")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 90, cfg.Recon.SLAMinutes)
	assert.Equal(t, []string{"btcusdt", "solusdt"}, cfg.Feed.Symbols)
	assert.Equal(t, "sekret", cfg.Server.APIKey)
}
