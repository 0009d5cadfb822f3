package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "COPY_GO_CONFIG"
	EnvTokenFile = "COPY_GO_TOKEN_FILE"
	EnvAPIHost   = "COPY_GO_API_HOST"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // COPY_GO_CONFIG: config file path
	TokenFile  string // COPY_GO_TOKEN_FILE: token file path
	APIHost    string // COPY_GO_API_HOST: API base URL
}

// ReadEnvOverrides reads the override variables. It does not modify any
// Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		TokenFile:  os.Getenv(EnvTokenFile),
		APIHost:    os.Getenv(EnvAPIHost),
	}
}
