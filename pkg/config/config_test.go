package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StoreMemory, cfg.Enrollment.Store)
	assert.Equal(t, 18, cfg.Enrollment.DefaultMaxCredits)
	assert.Equal(t, 2*time.Second, cfg.Enrollment.LockTimeout)
	assert.Equal(t, 3, cfg.Enrollment.RetryAttempts)
	assert.Equal(t, "enrollment.events", cfg.Events.Channel)
	assert.Equal(t, "@every 1m", cfg.Schedules.OutboxRelay)
	assert.Empty(t, cfg.Notifications.SendGridAPIKey)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ENROLLMENT_STORE", "POSTGRES")
	v.Set("ENROLLMENT_LOCK_TIMEOUT", "bogus")
	v.Set("ENROLLMENT_DEFAULT_MAX_CREDITS", 0)
	v.Set("ALLOWED_ORIGINS", " https://a.edu , ,https://b.edu")

	cfg := fromViper(v)
	assert.Equal(t, StorePostgres, cfg.Enrollment.Store)
	assert.Equal(t, 2*time.Second, cfg.Enrollment.LockTimeout)
	assert.Equal(t, 18, cfg.Enrollment.DefaultMaxCredits)
	assert.Equal(t, []string{"https://a.edu", "https://b.edu"}, cfg.CORS.AllowedOrigins)
}
