package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadIsolated loads config from an empty working directory so a stray
// config.yaml never leaks into the test.
func loadIsolated(t *testing.T, path string) *Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadIsolated(t, "")
	d := Default()

	assert.Equal(t, d.Server, cfg.Server)
	assert.Equal(t, d.Database.Path, cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.EqualValues(t, 5, cfg.Search.MaxConcurrent)
	assert.InDelta(t, 50, cfg.Search.Ranking.Threshold, 0.001)
	assert.InDelta(t, 5, cfg.Search.Ranking.SeasonMismatchPenalty, 0.001)
	assert.Equal(t, "0 4 * * *", cfg.Scheduler.CleanupCron)
	assert.Empty(t, cfg.Telegram.AdminIDs)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("CINESEARCH_SERVER_PORT", "9090")
	t.Setenv("CINESEARCH_SEARCH_TIMEOUT", "2s")
	t.Setenv("CINESEARCH_TELEGRAM_TOKEN", "prefixed-token")
	t.Setenv("BOT_TOKEN", "legacy-token")

	cfg := loadIsolated(t, "")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "prefixed-token", cfg.Telegram.Token)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "111,222")
	t.Setenv("LIBRARY_CHANNEL_ID", "-1001234567890")
	t.Setenv("DATABASE_URL", "postgres://bot@localhost/movies")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "10000")

	cfg := loadIsolated(t, "")
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, []int64{111, 222}, cfg.Telegram.AdminIDs)
	assert.Equal(t, int64(-1001234567890), cfg.Telegram.LibraryChannelID)
	assert.Equal(t, "postgres://bot@localhost/movies", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, 10000, cfg.Server.Port)
	assert.True(t, cfg.Telegram.IsAdmin(222))
	assert.False(t, cfg.Telegram.IsAdmin(333))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cinesearch.yaml")
	content := `
server:
  port: 7000
telegram:
  token: file-token
  admin_ids: [1, 2, 3]
search:
  default_limit: 10
  ranking:
    threshold: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := loadIsolated(t, path)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, []int64{1, 2, 3}, cfg.Telegram.AdminIDs)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.InDelta(t, 60, cfg.Search.Ranking.Threshold, 0.001)
	assert.InDelta(t, 3, cfg.Search.Ranking.Bonus, 0.001)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "token required")

	cfg.Telegram.Token = "123:abc"
	assert.NoError(t, cfg.Validate())

	cfg.Telegram.WebhookURL = "http://insecure.example.com/webhook"
	assert.Error(t, cfg.Validate())

	cfg.Telegram.WebhookURL = "https://bot.example.com/webhook"
	assert.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestServerConfig_Address(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", s.Address())
}

func TestVersionString(t *testing.T) {
	orig, origCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = orig, origCommit })

	Version, Commit = "1.2.3", ""
	assert.Equal(t, "1.2.3", VersionString())

	Commit = "abc123"
	assert.Equal(t, "1.2.3 (abc123)", VersionString())
}
