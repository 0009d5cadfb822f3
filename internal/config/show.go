package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration to w as annotated TOML,
// after all override layers were applied. It powers "config show".
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	ew.printf("[api]\n")
	ew.printf("host        = %q\n", cfg.API.Host)
	ew.printf("api_version = %q\n", cfg.API.APIVersion)
	ew.printf("client_type = %q\n", cfg.API.ClientType)
	ew.printf("token_file  = %q\n\n", cfg.API.TokenFile)

	ew.printf("[transfers]\n")
	ew.printf("part_size          = %q\n", cfg.Transfers.PartSize)
	ew.printf("parallel_uploads   = %d\n", cfg.Transfers.ParallelUploads)
	ew.printf("parallel_downloads = %d\n", cfg.Transfers.ParallelDownloads)
	ew.printf("share_id           = %d\n", cfg.Transfers.ShareID)
	ew.printf("bandwidth_limit    = %q\n\n", cfg.Transfers.BandwidthLimit)

	ew.printf("[network]\n")
	ew.printf("timeout     = %q\n", cfg.Network.Timeout)
	ew.printf("max_retries = %d\n", cfg.Network.MaxRetries)

	if cfg.Network.UserAgent != "" {
		ew.printf("user_agent  = %q\n", cfg.Network.UserAgent)
	}

	ew.printf("\n[logging]\n")
	ew.printf("log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("log_format = %q\n\n", cfg.Logging.LogFormat)

	ew.printf("[journal]\n")
	ew.printf("enabled = %t\n", cfg.Journal.Enabled)
	ew.printf("path    = %q\n", cfg.Journal.Path)

	return ew.err
}

// errWriter captures the first write error; later writes are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
