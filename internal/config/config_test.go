package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("CARD_SECRET", "card-secret")
}

func TestNewConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "@every 10m", cfg.TokenSweep)
	assert.False(t, cfg.MailEnabled())
}

func TestNewConfigRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CARD_SECRET", "card-secret")
	_, err := NewConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("CARD_SECRET", "")
	_, err = NewConfig()
	require.Error(t, err)
}

func TestNewConfigTTLOrdering(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "2h")
	t.Setenv("REFRESH_TOKEN_TTL", "1h")

	_, err := NewConfig()
	require.Error(t, err)
}

func TestNewConfigInvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "soon")

	_, err := NewConfig()
	require.Error(t, err)
}

func TestNewConfigMailEnabled(t *testing.T) {
	setRequired(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.True(t, cfg.MailEnabled())
}
