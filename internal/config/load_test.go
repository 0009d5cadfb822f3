package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[api]
host = "http://localhost:9000"
api_version = "1.0"
client_type = "API"
token_file = "/tmp/tok.json"

[transfers]
part_size = "4MiB"
parallel_uploads = 2
parallel_downloads = 3
share_id = 77
bandwidth_limit = "5MB/s"

[network]
timeout = "30s"
user_agent = "custom/1.0"
max_retries = 2

[logging]
log_level = "debug"
log_format = "json"

[journal]
path = "/tmp/journal.db"
enabled = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.API.Host)
	assert.Equal(t, "/tmp/tok.json", cfg.API.TokenFile)
	assert.Equal(t, 4*1024*1024, cfg.PartSizeBytes())
	assert.Equal(t, 2, cfg.Transfers.ParallelUploads)
	assert.Equal(t, 3, cfg.Transfers.ParallelDownloads)
	assert.Equal(t, uint64(77), cfg.Transfers.ShareID)
	assert.Equal(t, int64(5_000_000), cfg.BandwidthBytesPerSec())
	assert.Equal(t, "custom/1.0", cfg.Network.UserAgent)
	assert.Equal(t, 2, cfg.Network.MaxRetries)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[transfers]
parallel_uploads = 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, 8, cfg.Transfers.ParallelUploads)
	assert.Equal(t, def.Transfers.PartSize, cfg.Transfers.PartSize)
	assert.Equal(t, def.API.Host, cfg.API.Host)
	assert.Equal(t, def.Logging, cfg.Logging)
}

func TestLoad_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	path := writeTestConfig(t, `
[api]
token_file = "~/tok.json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tok.json"), cfg.API.TokenFile)
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[api\nhost ="))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[logging]\nlog_level = \"chatty\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadOrDefault_Missing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	fromFile := writeTestConfig(t, `
[api]
host = "http://file.example"

[transfers]
share_id = 5

[logging]
log_level = "info"
`)

	share := uint64(9)

	cfg, path, err := Resolve(
		EnvOverrides{ConfigPath: "/does/not/matter", APIHost: "http://env.example", TokenFile: "/env/token.json"},
		CLIOverrides{ConfigPath: fromFile, ShareID: &share, LogLevel: "debug"},
	)
	require.NoError(t, err)

	assert.Equal(t, fromFile, path, "--config beats the environment")
	assert.Equal(t, "http://env.example", cfg.API.Host, "environment beats the file")
	assert.Equal(t, "/env/token.json", cfg.API.TokenFile)
	assert.Equal(t, uint64(9), cfg.Transfers.ShareID, "flag beats the file")
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestResolve_EnvConfigPath(t *testing.T) {
	fromEnv := writeTestConfig(t, "[transfers]\nshare_id = 3\n")

	cfg, path, err := Resolve(EnvOverrides{ConfigPath: fromEnv}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, fromEnv, path)
	assert.Equal(t, uint64(3), cfg.Transfers.ShareID)
}

func TestResolve_InvalidOverride(t *testing.T) {
	_, _, err := Resolve(
		EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml"), APIHost: "not a url"},
		CLIOverrides{},
	)
	assert.Error(t, err)
}
