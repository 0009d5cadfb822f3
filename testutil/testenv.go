package testutil

import (
	"bufio"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that point E2E tests at a live API instead of an
// in-process Store.
const (
	EnvE2EHost  = "COPY_GO_E2E_HOST"
	EnvE2EToken = "COPY_GO_E2E_TOKEN"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file. A missing file is not
// an error, and variables already set in the environment win.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// FindModuleRoot walks up from the working directory to the directory
// holding go.mod, or returns fallback.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// Target is an API endpoint for E2E runs: either a live host from the
// environment or a Store served over HTTP.
type Target struct {
	Host  string
	Token string
	Store *Store // nil for a live host

	srv *httptest.Server
}

// NewTarget returns the live host named by COPY_GO_E2E_HOST when set, and a
// fresh in-process Store otherwise.
func NewTarget() *Target {
	if host := os.Getenv(EnvE2EHost); host != "" {
		return &Target{Host: host, Token: os.Getenv(EnvE2EToken)}
	}

	store := NewStore()
	srv := httptest.NewServer(store)

	return &Target{Host: srv.URL, Token: "e2e-token", Store: store, srv: srv}
}

// Close stops the in-process server, if any.
func (t *Target) Close() {
	if t.srv != nil {
		t.srv.Close()
	}
}

// WriteConfig writes a config file for the target into dir and returns its
// path. The token and journal live next to it.
func (t *Target) WriteConfig(dir, partSize string) (string, error) {
	cfg := fmt.Sprintf(`[api]
host = %q
token_file = %q

[transfers]
part_size = %q

[logging]
log_format = "text"

[journal]
path = %q
`, t.Host, filepath.Join(dir, "token.json"), partSize, filepath.Join(dir, "journal.db"))

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	return path, nil
}
