// Package journal keeps a local SQLite record of completed uploads: where
// each file went, which share it was stored under and the manifest that
// reassembles it. A recorded manifest is enough to download the file again
// without a metadata lookup.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tonimelisma/copy-go/internal/parts"
)

// ErrNoEntry is returned by Latest when nothing was recorded for a path.
var ErrNoEntry = errors.New("journal: no entry")

const (
	sqlInsert = `INSERT INTO uploads
		(id, remote_path, local_path, share_id, size, parts_sent, parts_skipped,
		 bytes_sent, manifest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelect = `SELECT id, remote_path, local_path, share_id, size, parts_sent,
		parts_skipped, bytes_sent, manifest, created_at FROM uploads`

	sqlLatest = sqlSelect + ` WHERE remote_path = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`
	sqlList   = sqlSelect + ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
)

// Entry is one recorded upload.
type Entry struct {
	ID           uuid.UUID
	RemotePath   string
	LocalPath    string
	Share        parts.ShareID
	Manifest     *parts.Manifest
	PartsSent    int
	PartsSkipped int
	BytesSent    uint64
	CreatedAt    time.Time
}

// Journal is the upload journal database. It is safe for concurrent use.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens or creates the journal at dbPath and applies pending
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", dbPath))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Record stores e. A zero ID or CreatedAt is filled in and written back to
// e. The manifest must be valid.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if err := e.Manifest.Validate(); err != nil {
		return fmt.Errorf("journal: recording %s: %w", e.RemotePath, err)
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.nowFunc()
	}

	manifest, err := json.Marshal(e.Manifest)
	if err != nil {
		return fmt.Errorf("journal: encoding manifest for %s: %w", e.RemotePath, err)
	}

	_, err = j.db.ExecContext(ctx, sqlInsert,
		e.ID.String(),
		e.RemotePath,
		e.LocalPath,
		e.Share.String(),
		int64(e.Manifest.Size), //nolint:gosec // file sizes fit in int64
		e.PartsSent,
		e.PartsSkipped,
		int64(e.BytesSent), //nolint:gosec // file sizes fit in int64
		string(manifest),
		e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: recording %s: %w", e.RemotePath, err)
	}

	j.logger.Debug("journal entry recorded",
		slog.String("id", e.ID.String()),
		slog.String("remote_path", e.RemotePath),
	)

	return nil
}

// Latest returns the most recent entry for remotePath, or ErrNoEntry.
func (j *Journal) Latest(ctx context.Context, remotePath string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, sqlLatest, remotePath)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNoEntry, remotePath)
	}

	if err != nil {
		return nil, err
	}

	return e, nil
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := j.db.QueryContext(ctx, sqlList, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: listing entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating entries: %w", err)
	}

	return entries, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e         Entry
		id        string
		share     string
		size      int64
		bytesSent int64
		manifest  string
		created   int64
	)

	err := s.Scan(&id, &e.RemotePath, &e.LocalPath, &share, &size,
		&e.PartsSent, &e.PartsSkipped, &bytesSent, &manifest, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("journal: scanning entry: %w", err)
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("journal: entry has invalid id %q: %w", id, err)
	}

	if e.Share, err = parts.ParseShareID(share); err != nil {
		return nil, fmt.Errorf("journal: entry %s: %w", id, err)
	}

	e.Manifest = &parts.Manifest{}
	if err := json.Unmarshal([]byte(manifest), e.Manifest); err != nil {
		return nil, fmt.Errorf("journal: entry %s has corrupt manifest: %w", id, err)
	}

	if uint64(size) != e.Manifest.Size { //nolint:gosec // size was written from a uint64
		return nil, fmt.Errorf("journal: entry %s: %w: stored size %d, manifest %d",
			id, parts.ErrInvalidManifest, size, e.Manifest.Size)
	}

	e.BytesSent = uint64(bytesSent) //nolint:gosec // written from a uint64
	e.CreatedAt = time.Unix(0, created)

	return &e, nil
}
