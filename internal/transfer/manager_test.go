package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/internal/rpc"
)

func TestManager_UploadAllCollectsFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	mgr := NewManager(h.uploader, h.downloader, 2, 2, nil)
	dir := t.TempDir()

	var jobs []UploadJob

	for i, n := range []int{3, 40, 17} {
		p := filepath.Join(dir, string(rune('a'+i)))
		require.NoError(t, os.WriteFile(p, pattern(n), 0o600))
		jobs = append(jobs, UploadJob{LocalPath: p, RemotePath: "/up/" + string(rune('a'+i)), Share: parts.GlobalShare})
	}

	jobs = append(jobs, UploadJob{LocalPath: filepath.Join(dir, "missing"), RemotePath: "/up/missing"})

	results, err := mgr.UploadAll(context.Background(), jobs)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.Len(t, results, 4)

	for i, r := range results[:3] {
		require.NoError(t, r.Err, "job %d", i)
		assert.Equal(t, jobs[i], r.Job)
		assert.Equal(t, jobs[i].RemotePath, r.Result.RemotePath)
	}

	assert.Nil(t, results[3].Result)
	assert.Error(t, results[3].Err)
	assert.Equal(t, 3, h.store.Calls(rpc.MethodUpdateObject))
}

func TestManager_DownloadAll(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	mgr := NewManager(h.uploader, h.downloader, 0, 0, nil)

	data := pattern(33)
	_, err := h.uploader.UploadFile(ctx, writeLocal(t, data), "/one", parts.GlobalShare)
	require.NoError(t, err)

	dir := t.TempDir()

	results, err := mgr.DownloadAll(ctx, []DownloadJob{
		{RemotePath: "/one", LocalPath: filepath.Join(dir, "one")},
		{RemotePath: "/two", LocalPath: filepath.Join(dir, "two")},
	})
	require.ErrorIs(t, err, rpc.ErrNotFound)
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(len(data)), results[0].Bytes)

	got, err := os.ReadFile(filepath.Join(dir, "one"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.ErrorIs(t, results[1].Err, rpc.ErrNotFound)
}

func TestManager_Empty(t *testing.T) {
	t.Parallel()

	mgr := NewManager(nil, nil, 1, 1, nil)

	up, err := mgr.UploadAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, up)

	down, err := mgr.DownloadAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, down)
}

func TestNewManager_DefaultWorkers(t *testing.T) {
	mgr := NewManager(nil, nil, -1, 0, nil)
	assert.Equal(t, defaultUploadWorkers, mgr.uploadWorkers)
	assert.Equal(t, defaultDownloadWorkers, mgr.downloadWorkers)
}
