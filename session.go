package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/copy-go/internal/config"
	"github.com/tonimelisma/copy-go/internal/journal"
	"github.com/tonimelisma/copy-go/internal/objects"
	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/internal/rpc"
	"github.com/tonimelisma/copy-go/internal/transfer"
)

// Session holds the clients one command needs, all built from the resolved
// config and sharing one authenticated transport.
type Session struct {
	Objects    *objects.Client
	Parts      *parts.Client
	Uploader   *transfer.Uploader
	Downloader *transfer.Downloader
	Manager    *transfer.Manager
	Journal    *journal.Journal // nil when the journal is disabled
	Share      parts.ShareID
	Logger     *slog.Logger
}

// NewSession loads the saved token and assembles the API clients. The
// journal is opened only when withJournal is set and the config enables it.
func NewSession(ctx context.Context, cfg *config.Config, withJournal bool, logger *slog.Logger) (*Session, error) {
	ts, err := rpc.TokenSourceFromFile(cfg.API.TokenFile, logger)
	if err != nil {
		if errors.Is(err, rpc.ErrNotLoggedIn) {
			return nil, errors.New("not logged in: run 'copy-go login' first")
		}

		return nil, err
	}

	client := rpc.NewClient(
		cfg.API.Host,
		&http.Client{Timeout: cfg.TimeoutDuration()},
		rpc.NewTokenAuthenticator(ts),
		logger,
		userAgent(cfg),
	)
	client.SetMaxRetries(cfg.Network.MaxRetries)
	client.SetIdentity(cfg.API.APIVersion, cfg.API.ClientType)

	return newSession(ctx, cfg, client, withJournal, logger)
}

// newSession builds everything above the transport.
func newSession(
	ctx context.Context, cfg *config.Config, t rpc.Transport, withJournal bool, logger *slog.Logger,
) (*Session, error) {
	partClient := parts.NewClient(t, logger)
	objClient := objects.NewClient(t, logger)

	limiter := transfer.NewBandwidthLimiter(cfg.BandwidthBytesPerSec(), logger)

	uploader := transfer.NewUploader(partClient, objClient, cfg.PartSizeBytes(), logger)
	uploader.SetLimiter(limiter)

	downloader := transfer.NewDownloader(partClient, objClient, logger)
	downloader.SetLimiter(limiter)

	s := &Session{
		Objects:    objClient,
		Parts:      partClient,
		Uploader:   uploader,
		Downloader: downloader,
		Manager: transfer.NewManager(uploader, downloader,
			cfg.Transfers.ParallelUploads, cfg.Transfers.ParallelDownloads, logger),
		Share:  parts.ShareID(cfg.Transfers.ShareID),
		Logger: logger,
	}

	if withJournal && cfg.Journal.Enabled {
		j, err := journal.Open(ctx, cfg.Journal.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}

		s.Journal = j
	}

	return s, nil
}

// Close releases the journal, if open.
func (s *Session) Close() error {
	if s.Journal == nil {
		return nil
	}

	return s.Journal.Close()
}

func userAgent(cfg *config.Config) string {
	if cfg.Network.UserAgent != "" {
		return cfg.Network.UserAgent
	}

	return "copy-go/" + version
}
