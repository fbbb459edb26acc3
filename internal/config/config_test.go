package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("LIBRETA_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Libreta API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 10, cfg.UploadMaxSizeMB)
	require.Equal(t, 24*time.Hour, cfg.UploadTokenTTL)
	require.Equal(t, "discovery", cfg.Slotting)
	require.Equal(t, "libreta.audit", cfg.AuditSubject)
	require.Equal(t, "1", cfg.UGELDefaultGrade)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("LIBRETA_JWT_SECRET", "secret")
	t.Setenv("LIBRETA_APP_PORT", ":9090")
	t.Setenv("LIBRETA_UPLOAD_TOKEN_TTL", "90m")
	t.Setenv("LIBRETA_CONSOLIDATION_SLOTTING", "Identity")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 90*time.Minute, cfg.UploadTokenTTL)
	require.Equal(t, "identity", cfg.Slotting)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("LIBRETA_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("LIBRETA_JWT_SECRET", "secret")
	t.Setenv("LIBRETA_CONSOLIDATION_SLOTTING", "random")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("LIBRETA_CONSOLIDATION_SLOTTING", "discovery")
	t.Setenv("LIBRETA_UPLOAD_TOKEN_TTL", "tomorrow")
	_, err = Load()
	require.Error(t, err)
}
