package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/valorpoint")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 5, cfg.ReferralCodeAttempts)
	assert.Equal(t, "http://valorpoint.web.app/", cfg.AppBaseURL)
	assert.Empty(t, cfg.AMQPURL)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsZeroCodeAttempts(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/valorpoint")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REFERRAL_CODE_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
}
