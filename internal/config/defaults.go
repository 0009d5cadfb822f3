package config

// Default values for configuration options: layer zero of the override
// chain.
const (
	defaultAPIHost           = "https://api.copy.com"
	defaultAPIVersion        = "1.0"
	defaultClientType        = "API"
	defaultPartSize          = "1MiB"
	defaultParallelUploads   = 4
	defaultParallelDownloads = 4
	defaultBandwidthLimit    = "0"
	defaultTimeout           = "60s"
	defaultMaxRetries        = 5
	defaultLogLevel          = "warn"
	defaultLogFormat         = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their
// defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:       defaultAPIHost,
			APIVersion: defaultAPIVersion,
			ClientType: defaultClientType,
			TokenFile:  DefaultTokenPath(),
		},
		Transfers: TransfersConfig{
			PartSize:          defaultPartSize,
			ParallelUploads:   defaultParallelUploads,
			ParallelDownloads: defaultParallelDownloads,
			BandwidthLimit:    defaultBandwidthLimit,
		},
		Network: NetworkConfig{
			Timeout:    defaultTimeout,
			MaxRetries: defaultMaxRetries,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Journal: JournalConfig{
			Path:    DefaultJournalPath(),
			Enabled: true,
		},
	}
}
