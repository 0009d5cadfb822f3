// Package config implements TOML configuration loading, validation and
// platform-specific path resolution for copy-go. Values are layered:
// defaults, then the config file, then environment variables, then CLI
// flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API       APIConfig       `toml:"api"`
	Transfers TransfersConfig `toml:"transfers"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
	Journal   JournalConfig   `toml:"journal"`
}

// APIConfig locates the Copy API and the credentials used to call it.
type APIConfig struct {
	Host       string `toml:"host"`
	APIVersion string `toml:"api_version"`
	ClientType string `toml:"client_type"`
	TokenFile  string `toml:"token_file"`
}

// TransfersConfig controls part size, parallelism and bandwidth.
type TransfersConfig struct {
	PartSize          string `toml:"part_size"`
	ParallelUploads   int    `toml:"parallel_uploads"`
	ParallelDownloads int    `toml:"parallel_downloads"`
	ShareID           uint64 `toml:"share_id"`
	BandwidthLimit    string `toml:"bandwidth_limit"`
}

// NetworkConfig controls the HTTP client.
type NetworkConfig struct {
	Timeout    string `toml:"timeout"`
	UserAgent  string `toml:"user_agent"`
	MaxRetries int    `toml:"max_retries"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// JournalConfig controls the local upload journal.
type JournalConfig struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	ShareID    *uint64 // --share flag
	LogLevel   string  // derived from --verbose/--quiet/--debug
}
