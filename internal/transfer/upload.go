package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tonimelisma/copy-go/internal/objects"
	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/pkg/fingerprint"
)

// PartStore is the part store as seen by transfers. *parts.Client
// implements it.
type PartStore interface {
	HasPart(ctx context.Context, fp string, size uint64, share parts.ShareID) (bool, error)
	SendPart(ctx context.Context, fp string, size uint64, data []byte, share parts.ShareID) error
	GetPart(ctx context.Context, fp string, size uint64, share parts.ShareID) ([]byte, error)
}

// Metadata resolves and publishes files. *objects.Client implements it.
type Metadata interface {
	Lookup(ctx context.Context, remotePath string) (*objects.Object, error)
	CreateFile(ctx context.Context, remotePath string, m *parts.Manifest) (*objects.Object, error)
}

// UploadStats counts what an upload did per part.
type UploadStats struct {
	Parts     int
	Sent      int
	Skipped   int
	Bytes     uint64
	BytesSent uint64
}

// UploadResult is a completed upload. Object and RemotePath are set only by
// UploadFile.
type UploadResult struct {
	Manifest   *parts.Manifest
	Stats      UploadStats
	RemotePath string
	Object     *objects.Object
}

// Uploader turns a byte stream into stored parts and a manifest. One
// Uploader may serve many files concurrently; each Upload call keeps its
// own manifest and offset.
type Uploader struct {
	store    PartStore
	meta     Metadata
	partSize int
	limiter  *BandwidthLimiter
	progress ProgressFunc
	logger   *slog.Logger
}

// NewUploader creates an Uploader. meta may be nil when UploadFile is not
// used. A partSize of zero selects DefaultPartSize.
func NewUploader(store PartStore, meta Metadata, partSize int, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	if partSize == 0 {
		partSize = DefaultPartSize
	}

	return &Uploader{store: store, meta: meta, partSize: partSize, logger: logger}
}

// SetLimiter throttles the part bytes sent to the store. Skipped parts
// are not counted.
func (u *Uploader) SetLimiter(bl *BandwidthLimiter) {
	u.limiter = bl
}

// SetProgress installs a state change callback.
func (u *Uploader) SetProgress(fn ProgressFunc) {
	u.progress = fn
}

// Upload stores r as parts under share, one part at a time, and returns the
// manifest. Parts the store already holds are not sent again. On failure
// nothing is returned but a *TransferError; there is no partial manifest
// and no retry.
func (u *Uploader) Upload(ctx context.Context, r io.Reader, share parts.ShareID) (*UploadResult, error) {
	var stats UploadStats

	m := &parts.Manifest{}

	fail := func(stage State, index int, fp string, err error) error {
		u.report(Progress{State: StateFailed, Part: index, Offset: m.Size, Fingerprint: fp})

		return &TransferError{
			Op:          opUpload,
			Stage:       stage,
			Part:        index,
			Offset:      m.Size,
			Fingerprint: fp,
			PartsSent:   stats.Sent,
			Err:         err,
		}
	}

	chunker, err := NewChunker(r, u.partSize)
	if err != nil {
		return nil, fail(StateChunking, -1, "", err)
	}

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, fail(StateChunking, index, "", err)
		}

		u.report(Progress{State: StateChunking, Part: index, Offset: m.Size})

		data, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fail(StateChunking, index, "", err)
		}

		size := uint64(len(data))

		u.report(Progress{State: StateFingerprinting, Part: index, Offset: m.Size, Size: size})
		fp := fingerprint.Sum(data)

		if err := ctx.Err(); err != nil {
			return nil, fail(StateCheckingDedup, index, fp, err)
		}

		u.report(Progress{State: StateCheckingDedup, Part: index, Offset: m.Size, Size: size, Fingerprint: fp})

		needed, err := u.store.HasPart(ctx, fp, size, share)
		if err != nil {
			return nil, fail(StateCheckingDedup, index, fp, err)
		}

		if needed {
			if err := ctx.Err(); err != nil {
				return nil, fail(StateUploading, index, fp, err)
			}

			u.report(Progress{State: StateUploading, Part: index, Offset: m.Size, Size: size, Fingerprint: fp})

			if err := u.limiter.Wait(ctx, len(data)); err != nil {
				return nil, fail(StateUploading, index, fp, err)
			}

			if err := u.store.SendPart(ctx, fp, size, data, share); err != nil {
				return nil, fail(StateUploading, index, fp, err)
			}

			stats.Sent++
			stats.BytesSent += size
		} else {
			u.report(Progress{State: StateSkipped, Part: index, Offset: m.Size, Size: size, Fingerprint: fp})
			stats.Skipped++
		}

		m.Append(fp, size)
		stats.Parts++
	}

	u.report(Progress{State: StateAssembling, Part: -1, Size: m.Size})

	if err := m.Validate(); err != nil {
		return nil, fail(StateAssembling, -1, "", err)
	}

	stats.Bytes = m.Size

	u.report(Progress{State: StateDone, Part: -1, Size: m.Size})

	u.logger.Info("upload complete",
		slog.String("share_id", share.String()),
		slog.Int("parts", stats.Parts),
		slog.Int("sent", stats.Sent),
		slog.Int("skipped", stats.Skipped),
		slog.Uint64("bytes", stats.Bytes),
		slog.Uint64("bytes_sent", stats.BytesSent),
	)

	return &UploadResult{Manifest: m, Stats: stats}, nil
}

// UploadFile uploads the local file and publishes it at remotePath. The
// file is only created remotely once every part is stored.
func (u *Uploader) UploadFile(ctx context.Context, localPath, remotePath string, share parts.ShareID) (*UploadResult, error) {
	if u.meta == nil {
		return nil, errors.New("transfer: uploader has no metadata client")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s: %w", localPath, err)
	}
	defer f.Close()

	u.logger.Info("uploading file",
		slog.String("local", localPath),
		slog.String("remote", remotePath),
	)

	res, err := u.Upload(ctx, f, share)
	if err != nil {
		return nil, err
	}

	u.report(Progress{State: StateCreating, Part: -1, Size: res.Manifest.Size})

	obj, err := u.meta.CreateFile(ctx, remotePath, res.Manifest)
	if err != nil {
		return nil, &TransferError{
			Op:        opUpload,
			Stage:     StateCreating,
			Part:      -1,
			Offset:    res.Manifest.Size,
			PartsSent: res.Stats.Sent,
			Err:       err,
		}
	}

	res.RemotePath = objects.CleanPath(remotePath)
	res.Object = obj

	return res, nil
}

// UploadAsync runs Upload in a new goroutine.
func (u *Uploader) UploadAsync(ctx context.Context, r io.Reader, share parts.ShareID) *Future[*UploadResult] {
	return Go(ctx, func(ctx context.Context) (*UploadResult, error) {
		return u.Upload(ctx, r, share)
	})
}

func (u *Uploader) report(p Progress) {
	if u.progress != nil {
		u.progress(p)
	}
}
