package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, GetAllowedOrigins())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_URL", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DEDUP_MODE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "atomic", cfg.DedupMode)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadSizeBytes)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meet.toml")
	body := `
http_addr = ":9000"
db_url = "mysql://user:pw@tcp(db:3306)/meet"
dedup_mode = "check-then-insert"
shutdown_timeout_seconds = 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, "mysql://user:pw@tcp(db:3306)/meet", cfg.DatabaseURL)
	assert.Equal(t, "check-then-insert", cfg.DedupMode)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}
