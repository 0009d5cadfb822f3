package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/copy-go/internal/parts"
)

// Default worker counts when none are configured.
const (
	defaultUploadWorkers   = 4
	defaultDownloadWorkers = 4
)

// UploadJob is one local file to publish at a remote path.
type UploadJob struct {
	LocalPath  string
	RemotePath string
	Share      parts.ShareID
}

// UploadJobResult is the outcome of one UploadJob. Exactly one of Result
// and Err is set.
type UploadJobResult struct {
	Job    UploadJob
	Result *UploadResult
	Err    error
}

// DownloadJob is one remote file to save at a local path.
type DownloadJob struct {
	RemotePath string
	LocalPath  string
}

// DownloadJobResult is the outcome of one DownloadJob.
type DownloadJobResult struct {
	Job   DownloadJob
	Bytes int64
	Err   error
}

// Manager runs independent file transfers through bounded worker pools.
// Each file is still transferred part by part by its own Upload or Download
// call; only whole files run in parallel.
type Manager struct {
	uploader        *Uploader
	downloader      *Downloader
	uploadWorkers   int
	downloadWorkers int
	logger          *slog.Logger
}

// NewManager creates a Manager. Worker counts of zero or less select the
// defaults.
func NewManager(u *Uploader, d *Downloader, uploadWorkers, downloadWorkers int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if uploadWorkers <= 0 {
		uploadWorkers = defaultUploadWorkers
	}

	if downloadWorkers <= 0 {
		downloadWorkers = defaultDownloadWorkers
	}

	return &Manager{
		uploader:        u,
		downloader:      d,
		uploadWorkers:   uploadWorkers,
		downloadWorkers: downloadWorkers,
		logger:          logger,
	}
}

// UploadAll uploads every job. A failed job does not stop its siblings;
// results are returned in job order and the error joins every job failure.
func (mgr *Manager) UploadAll(ctx context.Context, jobs []UploadJob) ([]UploadJobResult, error) {
	results := make([]UploadJobResult, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	mgr.logger.Info("starting uploads",
		slog.Int("count", len(jobs)),
		slog.Int("workers", mgr.uploadWorkers),
	)

	dispatch(ctx, len(jobs), mgr.uploadWorkers, func(ctx context.Context, i int) {
		job := jobs[i]
		res, err := mgr.uploader.UploadFile(ctx, job.LocalPath, job.RemotePath, job.Share)
		results[i] = UploadJobResult{Job: job, Result: res, Err: err}

		if err != nil {
			mgr.logger.Warn("upload failed",
				slog.String("local", job.LocalPath),
				slog.String("remote", job.RemotePath),
				slog.String("error", err.Error()),
			)
		}
	})

	errs := make([]error, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Job.LocalPath, r.Err))
		}
	}

	return results, errors.Join(errs...)
}

// DownloadAll downloads every job with the same failure handling as
// UploadAll.
func (mgr *Manager) DownloadAll(ctx context.Context, jobs []DownloadJob) ([]DownloadJobResult, error) {
	results := make([]DownloadJobResult, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	mgr.logger.Info("starting downloads",
		slog.Int("count", len(jobs)),
		slog.Int("workers", mgr.downloadWorkers),
	)

	dispatch(ctx, len(jobs), mgr.downloadWorkers, func(ctx context.Context, i int) {
		job := jobs[i]
		n, err := mgr.downloader.DownloadFile(ctx, job.RemotePath, job.LocalPath)
		results[i] = DownloadJobResult{Job: job, Bytes: n, Err: err}

		if err != nil {
			mgr.logger.Warn("download failed",
				slog.String("remote", job.RemotePath),
				slog.String("local", job.LocalPath),
				slog.String("error", err.Error()),
			)
		}
	})

	errs := make([]error, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Job.RemotePath, r.Err))
		}
	}

	return results, errors.Join(errs...)
}

// dispatch calls fn for every index in [0, n) on at most workers
// goroutines. fn owns slot i of whatever it writes to, so no locking is
// needed; per-job failures are fn's to record.
func dispatch(ctx context.Context, n, workers int, fn func(context.Context, int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range n {
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}

	_ = g.Wait()
}
