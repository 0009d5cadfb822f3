package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minTransferWorkers = 1
	maxTransferWorkers = 64
	minPartBytes       = 1
	maxPartBytes       = 64 * mebibyte
	minTimeout         = 1 * time.Second
	maxRetriesLimit    = 20
)

// Validate checks all configuration values and returns every error found,
// so a user can fix the file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	u, err := url.Parse(a.Host)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("api.host: %w", err))
	case u.Scheme != "https" && u.Scheme != "http":
		errs = append(errs, fmt.Errorf("api.host: must be an http or https URL, got %q", a.Host))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("api.host: missing host in %q", a.Host))
	}

	if a.APIVersion == "" {
		errs = append(errs, errors.New("api.api_version: must not be empty"))
	}

	if a.ClientType == "" {
		errs = append(errs, errors.New("api.client_type: must not be empty"))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if n, err := ParseSize(t.PartSize); err != nil {
		errs = append(errs, fmt.Errorf("transfers.part_size: %w", err))
	} else if n < minPartBytes || n > maxPartBytes {
		errs = append(errs, fmt.Errorf("transfers.part_size: must be between 1 byte and 64MiB, got %q", t.PartSize))
	}

	errs = append(errs, validateWorkers("transfers.parallel_uploads", t.ParallelUploads)...)
	errs = append(errs, validateWorkers("transfers.parallel_downloads", t.ParallelDownloads)...)

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("transfers.bandwidth_limit: %w", err))
	}

	return errs
}

func validateWorkers(field string, n int) []error {
	if n < minTransferWorkers || n > maxTransferWorkers {
		return []error{fmt.Errorf("%s: must be between %d and %d, got %d",
			field, minTransferWorkers, maxTransferWorkers, n)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(n.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("network.timeout: invalid duration %q: %w", n.Timeout, err))
	} else if d < minTimeout {
		errs = append(errs, fmt.Errorf("network.timeout: must be >= %s, got %s", minTimeout, d))
	}

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("network.max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, n.MaxRetries))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateJournal(j *JournalConfig) []error {
	if j.Enabled && j.Path == "" {
		return []error{errors.New("journal.path: must be set when the journal is enabled")}
	}

	return nil
}
