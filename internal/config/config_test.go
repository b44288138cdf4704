package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomodoro/focusd/internal/cycle"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "DB_PATH", "JWT_SECRET", "TOKEN_TTL_HOURS", "CORS_ORIGINS",
		"MIGRATIONS_DIR", "POMODORO_CYCLE", "TICK_INTERVAL_MS", "AUTO_ADVANCE", "LOG_LEVEL", "LOG_PRETTY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, cycle.Default().Phases(), cfg.Cycle.Phases())
	assert.Empty(t, cfg.MigrationsDir)
	assert.False(t, cfg.AutoAdvance)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("POMODORO_CYCLE", "focus, short_break, focus, long_break")
	t.Setenv("TICK_INTERVAL_MS", "250")
	t.Setenv("AUTO_ADVANCE", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 4, cfg.Cycle.Len())
	assert.Equal(t, cycle.LongBreak, cfg.Cycle.PhaseAt(3))
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.True(t, cfg.AutoAdvance)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsUnknownPhase(t *testing.T) {
	clearEnv(t)
	t.Setenv("POMODORO_CYCLE", "focus,nap")

	_, err := Load()
	assert.ErrorIs(t, err, cycle.ErrInvalidPhase)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "focusd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
db_path: /var/lib/focusd/focusd.db
cycle: [focus, short_break, long_break]
auto_advance: true
log_level: debug
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "/var/lib/focusd/focusd.db", cfg.DBPath)
	assert.Equal(t, []cycle.Phase{cycle.Focus, cycle.ShortBreak, cycle.LongBreak}, cfg.Cycle.Phases())
	assert.True(t, cfg.AutoAdvance)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
