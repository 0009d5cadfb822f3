package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/internal/rpc"
	"github.com/tonimelisma/copy-go/pkg/fingerprint"
)

// partialSuffix marks a local file that is still being written.
const partialSuffix = ".partial"

// Downloader reassembles files from their manifests.
type Downloader struct {
	store    PartStore
	meta     Metadata
	limiter  *BandwidthLimiter
	progress ProgressFunc
	logger   *slog.Logger
}

// NewDownloader creates a Downloader. meta may be nil when only manifests
// are downloaded.
func NewDownloader(store PartStore, meta Metadata, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Downloader{store: store, meta: meta, logger: logger}
}

// SetLimiter throttles the bytes written downstream.
func (d *Downloader) SetLimiter(bl *BandwidthLimiter) {
	d.limiter = bl
}

// SetProgress installs a state change callback.
func (d *Downloader) SetProgress(fn ProgressFunc) {
	d.progress = fn
}

// Download writes the file described by m to w. Parts are fetched in
// manifest order, each written before the next is requested. A failed part
// aborts the download; bytes already written stay written and the caller
// must discard them. An invalid manifest is rejected before any fetch.
func (d *Downloader) Download(ctx context.Context, m *parts.Manifest, share parts.ShareID, w io.Writer) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, fmt.Errorf("transfer: refusing to download: %w", err)
	}

	var written int64

	fail := func(stage State, index int, p parts.Part, err error) error {
		d.report(Progress{State: StateFailed, Part: index, Offset: p.Offset, Size: p.Size, Fingerprint: p.Fingerprint})

		return &TransferError{
			Op:          opDownload,
			Stage:       stage,
			Part:        index,
			Offset:      p.Offset,
			Fingerprint: p.Fingerprint,
			Written:     written,
			Err:         err,
		}
	}

	out := d.limiter.Writer(ctx, w)

	for i, p := range m.Parts {
		if err := ctx.Err(); err != nil {
			return written, fail(StateFetching, i, p, err)
		}

		d.report(Progress{State: StateFetching, Part: i, Offset: p.Offset, Size: p.Size, Fingerprint: p.Fingerprint})

		data, err := d.store.GetPart(ctx, p.Fingerprint, p.Size, share)
		if err != nil {
			return written, fail(StateFetching, i, p, err)
		}

		if actual := fingerprint.Sum(data); actual != p.Fingerprint {
			return written, fail(StateFetching, i, p, &rpc.IntegrityError{
				Fingerprint: p.Fingerprint,
				Actual:      actual,
				Size:        p.Size,
				ActualSize:  uint64(len(data)),
			})
		}

		d.report(Progress{State: StateWriting, Part: i, Offset: p.Offset, Size: p.Size, Fingerprint: p.Fingerprint})

		n, err := out.Write(data)
		written += int64(n)

		if err != nil {
			return written, fail(StateWriting, i, p, err)
		}
	}

	d.report(Progress{State: StateDone, Part: -1, Size: m.Size})

	d.logger.Debug("download complete",
		slog.String("share_id", share.String()),
		slog.Int("parts", len(m.Parts)),
		slog.Int64("bytes", written),
	)

	return written, nil
}

// Open streams the file described by m. The reader returns the download
// error in place of io.EOF if a part fails, so a short stream is never
// mistaken for a complete one. Closing the reader early stops the download.
func (d *Downloader) Open(ctx context.Context, m *parts.Manifest, share parts.ShareID) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		_, err := d.Download(ctx, m, share, pw)
		pw.CloseWithError(err)
	}()

	return pr
}

// DownloadPath resolves remotePath to a single file and writes it to w. The
// lookup fails with rpc.ErrNotFound or rpc.ErrTypeMismatch before any part
// is fetched.
func (d *Downloader) DownloadPath(ctx context.Context, remotePath string, w io.Writer) (int64, error) {
	m, share, _, err := d.resolve(ctx, remotePath)
	if err != nil {
		return 0, err
	}

	return d.Download(ctx, m, share, w)
}

// DownloadFile downloads remotePath to localPath. Data goes to a .partial
// file that is renamed into place only after every part was written.
func (d *Downloader) DownloadFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	m, share, mtime, err := d.resolve(ctx, remotePath)
	if err != nil {
		return 0, err
	}

	d.logger.Info("downloading file",
		slog.String("remote", remotePath),
		slog.String("local", localPath),
		slog.Uint64("size", m.Size),
	)

	return d.writeFile(ctx, m, share, localPath, mtime)
}

// DownloadManifestFile downloads a file from a known manifest, skipping the
// metadata lookup.
func (d *Downloader) DownloadManifestFile(
	ctx context.Context, m *parts.Manifest, share parts.ShareID, localPath string,
) (int64, error) {
	return d.writeFile(ctx, m, share, localPath, time.Time{})
}

// DownloadAsync runs Download in a new goroutine.
func (d *Downloader) DownloadAsync(ctx context.Context, m *parts.Manifest, share parts.ShareID, w io.Writer) *Future[int64] {
	return Go(ctx, func(ctx context.Context) (int64, error) {
		return d.Download(ctx, m, share, w)
	})
}

func (d *Downloader) resolve(ctx context.Context, remotePath string) (*parts.Manifest, parts.ShareID, time.Time, error) {
	if d.meta == nil {
		return nil, 0, time.Time{}, errors.New("transfer: downloader has no metadata client")
	}

	d.report(Progress{State: StateLookup, Part: -1})

	obj, err := d.meta.Lookup(ctx, remotePath)
	if err != nil {
		return nil, 0, time.Time{}, &TransferError{Op: opDownload, Stage: StateLookup, Part: -1, Err: err}
	}

	m, err := obj.Manifest()
	if err != nil {
		return nil, 0, time.Time{}, &TransferError{Op: opDownload, Stage: StateLookup, Part: -1, Err: err}
	}

	return m, obj.Share(), obj.Modified(), nil
}

func (d *Downloader) writeFile(
	ctx context.Context, m *parts.Manifest, share parts.ShareID, localPath string, mtime time.Time,
) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return 0, fmt.Errorf("transfer: creating parent dir for %s: %w", localPath, err)
	}

	partial := localPath + partialSuffix

	f, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("transfer: creating %s: %w", partial, err)
	}

	n, err := d.Download(ctx, m, share, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("transfer: closing %s: %w", partial, cerr)
	}

	if err != nil {
		os.Remove(partial)
		return n, err
	}

	if !mtime.IsZero() {
		if err := os.Chtimes(partial, mtime, mtime); err != nil {
			d.logger.Warn("failed to set mtime on partial",
				slog.String("path", partial),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := os.Rename(partial, localPath); err != nil {
		os.Remove(partial)
		return n, fmt.Errorf("transfer: renaming partial to %s: %w", localPath, err)
	}

	return n, nil
}

func (d *Downloader) report(p Progress) {
	if d.progress != nil {
		d.progress(p)
	}
}
