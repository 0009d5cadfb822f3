package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_RoundTripsAsTOML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transfers.ShareID = 42
	cfg.Network.UserAgent = "agent/1"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/copy-go.toml", &buf))
	assert.Contains(t, buf.String(), "# Effective configuration (file: /etc/copy-go.toml)")

	parsed := &Config{}
	md, err := toml.Decode(buf.String(), parsed)
	require.NoError(t, err)
	assert.Empty(t, md.Undecoded())
	assert.Equal(t, cfg, parsed)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestRenderEffective_WriteError(t *testing.T) {
	assert.Error(t, RenderEffective(DefaultConfig(), "x", failWriter{}))
}
