package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/bornify")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CRON_SECRET", "cron")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 168*time.Hour, c.JWTTTL)
	assert.Equal(t, 4, c.WorkerCount)
	assert.Equal(t, 5.0, c.SendRate)
	assert.Equal(t, 30*time.Second, c.UserTimeout)
	assert.Equal(t, ProviderResend, c.EmailProvider)
	assert.Equal(t, 587, c.SMTPPort)
	assert.Equal(t, "Bornify", c.EmailFromName)
	assert.Equal(t, 10*time.Minute, c.OTPRateWindow)
	assert.Equal(t, 3, c.OTPRateMax)
	assert.Equal(t, time.UTC, c.Location)
	assert.False(t, c.IsProduction())
}

func TestLoad_MissingRequiredAreAllReported(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CRON_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	for _, name := range []string{"DATABASE_URL", "JWT_SECRET", "CRON_SECRET"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestLoadWorker_SkipsServerSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bornify")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CRON_SECRET", "")

	c, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/bornify", c.DatabaseURL)

	t.Setenv("DATABASE_URL", "")
	_, err = LoadWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("REMINDER_TZ", "Mars/Olympus")
	t.Setenv("CRON_SCHEDULE", "every day")
	t.Setenv("EMAIL_PROVIDER", "carrier-pigeon")
	t.Setenv("WORKER_COUNT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REMINDER_TZ")
	assert.Contains(t, err.Error(), "CRON_SCHEDULE")
	assert.Contains(t, err.Error(), "EMAIL_PROVIDER")
	assert.Contains(t, err.Error(), "WORKER_COUNT")
}

func TestLoad_ParsesListsAndZones(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ORIGINS", "https://bornify.app, http://localhost:3000")
	t.Setenv("REMINDER_TZ", "Africa/Johannesburg")
	t.Setenv("CRON_SCHEDULE", "0 7 * * *")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://bornify.app", "http://localhost:3000"}, c.AllowedOrigins)
	assert.Equal(t, "Africa/Johannesburg", c.Location.String())
}

func TestEmailConfigured(t *testing.T) {
	c := &Config{EmailProvider: ProviderResend}
	assert.False(t, c.EmailConfigured())
	c.ResendAPIKey = "re_123"
	assert.True(t, c.EmailConfigured())

	s := &Config{EmailProvider: ProviderSMTP, SMTPHost: "smtp.gmail.com", SMTPUser: "u"}
	assert.False(t, s.EmailConfigured())
	s.SMTPPass = "p"
	assert.True(t, s.EmailConfigured())
}
