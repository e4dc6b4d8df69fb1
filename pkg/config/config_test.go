package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "REMINDER_DAYS_BEFORE", "LOG_LEVEL", "PIX_KEY", "PIX_KEY_TYPE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "fredbilling.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.ReminderDaysBefore)
	assert.Equal(t, "info", cfg.GetLoggerConfig().Level)

	mc := cfg.MessageConfig()
	assert.False(t, mc.IncludePix)
	assert.True(t, mc.IncludeAmount)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REMINDER_DAYS_BEFORE", "5")
	t.Setenv("PIX_KEY", "ana@example.com")
	t.Setenv("PIX_KEY_TYPE", "email")
	t.Setenv("MESSAGE_SIGNATURE", "Fred Cobranças")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5, cfg.ReminderDaysBefore)
	assert.Equal(t, "json", cfg.GetLoggerConfig().Format)

	mc := cfg.MessageConfig()
	assert.True(t, mc.IncludePix)
	assert.Equal(t, "ana@example.com", mc.PixKey)
	assert.Equal(t, "Fred Cobranças", mc.Signature)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PORT", "70000"},
		{"negative days", "REMINDER_DAYS_BEFORE", "-1"},
		{"bad cron", "REMINDER_CRON", "every day"},
		{"pix key without type", "PIX_KEY", "ana@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
