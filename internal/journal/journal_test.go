package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/pkg/fingerprint"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "journal.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = j.Close() })

	return j
}

// fixedClock returns successive times one second apart.
func fixedClock() func() time.Time {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func testManifest() *parts.Manifest {
	m := &parts.Manifest{}
	m.Append(fingerprint.Sum([]byte("aaaa")), 10)
	m.Append(fingerprint.Sum([]byte("bbbb")), 3)

	return m
}

func TestRecordAndLatest(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	j.nowFunc = fixedClock()
	ctx := context.Background()

	e := &Entry{
		RemotePath:   "/docs/a.txt",
		LocalPath:    "/home/me/a.txt",
		Share:        parts.ShareID(18446744073709551615),
		Manifest:     testManifest(),
		PartsSent:    1,
		PartsSkipped: 1,
		BytesSent:    10,
	}
	require.NoError(t, j.Record(ctx, e))
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := j.Latest(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.LocalPath, got.LocalPath)
	assert.Equal(t, e.Share, got.Share)
	assert.Equal(t, e.Manifest, got.Manifest)
	assert.Equal(t, 1, got.PartsSent)
	assert.Equal(t, 1, got.PartsSkipped)
	assert.Equal(t, uint64(10), got.BytesSent)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
}

func TestLatest_NewestWins(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	j.nowFunc = fixedClock()
	ctx := context.Background()

	first := &Entry{RemotePath: "/f", Manifest: testManifest()}
	require.NoError(t, j.Record(ctx, first))

	newer := &parts.Manifest{}
	newer.Append(fingerprint.Sum([]byte("cccc")), 1)

	second := &Entry{RemotePath: "/f", Manifest: newer}
	require.NoError(t, j.Record(ctx, second))

	got, err := j.Latest(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, uint64(1), got.Manifest.Size)
}

func TestLatest_NoEntry(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)

	_, err := j.Latest(context.Background(), "/nothing")
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestRecord_RejectsInvalidManifest(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)

	err := j.Record(context.Background(), &Entry{
		RemotePath: "/bad",
		Manifest:   &parts.Manifest{Parts: []parts.Part{{Fingerprint: "a", Size: 1, Offset: 9}}, Size: 1},
	})
	require.ErrorIs(t, err, parts.ErrInvalidManifest)

	entries, err := j.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecord_EmptyFile(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, &Entry{RemotePath: "/empty", Manifest: &parts.Manifest{}}))

	got, err := j.Latest(ctx, "/empty")
	require.NoError(t, err)
	assert.Empty(t, got.Manifest.Parts)
	assert.Zero(t, got.Manifest.Size)
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	j.nowFunc = fixedClock()
	ctx := context.Background()

	for _, p := range []string{"/a", "/b", "/c"} {
		require.NoError(t, j.Record(ctx, &Entry{RemotePath: p, Manifest: testManifest()}))
	}

	all, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/c", all[0].RemotePath)
	assert.Equal(t, "/a", all[2].RemotePath)

	two, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "/b", two[1].RemotePath)
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, &Entry{RemotePath: "/keep", Manifest: testManifest()}))
	require.NoError(t, j.Close())

	j, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Latest(ctx, "/keep")
	require.NoError(t, err)
	assert.Equal(t, uint64(13), got.Manifest.Size)
}
