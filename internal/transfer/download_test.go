package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/internal/rpc"
	"github.com/tonimelisma/copy-go/pkg/fingerprint"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, testPartSize, testPartSize + 1, 3*testPartSize + 7} {
		h := newHarness(t)
		ctx := context.Background()
		data := pattern(n)

		res, err := h.uploader.Upload(ctx, bytes.NewReader(data), parts.GlobalShare)
		require.NoError(t, err, "n=%d", n)

		var buf bytes.Buffer

		written, err := h.downloader.Download(ctx, res.Manifest, parts.GlobalShare, &buf)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, int64(n), written)
		assert.Equal(t, data, buf.Bytes()[:written], "n=%d", n)

		rc := h.downloader.Open(ctx, res.Manifest, parts.GlobalShare)
		streamed, err := io.ReadAll(rc)
		require.NoError(t, err, "n=%d", n)
		require.NoError(t, rc.Close())
		assert.Equal(t, n, len(streamed))
		assert.True(t, bytes.Equal(data, streamed), "n=%d", n)
	}
}

func TestDownloadPath_RoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	data := pattern(2*testPartSize + 5)

	_, err := h.uploader.UploadFile(ctx, writeLocal(t, data), "/a/b.bin", parts.GlobalShare)
	require.NoError(t, err)

	var buf bytes.Buffer

	_, err = h.downloader.DownloadPath(ctx, "a/b.bin", &buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
}

func TestDownloadPath_NotFoundBeforeFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.downloader.DownloadPath(context.Background(), "/missing", io.Discard)
	require.ErrorIs(t, err, rpc.ErrNotFound)
	assert.Zero(t, h.store.Calls(rpc.MethodGetParts))
}

func TestDownloadPath_TypeMismatchBeforeFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.PutDir("/folder")

	_, err := h.downloader.DownloadPath(context.Background(), "/folder", io.Discard)
	require.ErrorIs(t, err, rpc.ErrTypeMismatch)

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StateLookup, te.Stage)
	assert.Zero(t, h.store.Calls(rpc.MethodGetParts))
}

func TestDownload_InvalidManifestBeforeFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	m := &parts.Manifest{Parts: []parts.Part{
		{Fingerprint: "a", Size: 4, Offset: 0},
		{Fingerprint: "b", Size: 4, Offset: 8},
	}, Size: 8}

	_, err := h.downloader.Download(context.Background(), m, parts.GlobalShare, io.Discard)
	require.ErrorIs(t, err, parts.ErrInvalidManifest)
	assert.Zero(t, h.store.Calls(rpc.MethodGetParts))
}

func TestDownload_MalformedFingerprintBeforeFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	m := &parts.Manifest{}
	m.Append("ABC", 4)

	_, err := h.downloader.Download(context.Background(), m, parts.GlobalShare, io.Discard)
	require.ErrorIs(t, err, parts.ErrInvalidManifest)
	assert.Zero(t, h.store.Calls(rpc.MethodGetParts))
}

func TestDownload_MalformedResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	res, err := h.uploader.Upload(ctx, bytes.NewReader([]byte("abcdefghij")), parts.GlobalShare)
	require.NoError(t, err)

	h.store.GetHook = func(raw []byte) []byte {
		return bytes.Replace(raw, []byte{0}, nil, 1)
	}

	_, err = h.downloader.Download(ctx, res.Manifest, parts.GlobalShare, io.Discard)
	require.ErrorIs(t, err, rpc.ErrProtocol)

	var pe *rpc.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, rpc.ReasonMissingNUL, pe.Reason)
}

func TestDownload_CorruptPayloadIsIntegrityError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	res, err := h.uploader.Upload(ctx, bytes.NewReader(pattern(10)), parts.GlobalShare)
	require.NoError(t, err)

	h.store.GetHook = func(raw []byte) []byte {
		out := bytes.Clone(raw)
		out[len(out)-1] ^= 0xff

		return out
	}

	var buf bytes.Buffer

	_, err = h.downloader.Download(ctx, res.Manifest, parts.GlobalShare, &buf)
	require.ErrorIs(t, err, rpc.ErrIntegrity)
	assert.Zero(t, buf.Len(), "corrupt part must not reach the writer")
}

func TestDownload_FailureMidStream(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	data := pattern(3 * testPartSize)

	res, err := h.uploader.Upload(ctx, bytes.NewReader(data), parts.GlobalShare)
	require.NoError(t, err)

	h.store.FailGet[res.Manifest.Parts[2].Fingerprint] = "part lost"

	var buf bytes.Buffer

	written, err := h.downloader.Download(ctx, res.Manifest, parts.GlobalShare, &buf)
	require.ErrorIs(t, err, rpc.ErrProtocol)
	assert.Equal(t, int64(2*testPartSize), written)
	assert.Equal(t, data[:2*testPartSize], buf.Bytes(), "earlier parts stay delivered, in order")

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Part)
	assert.Equal(t, int64(2*testPartSize), te.Written)
	assert.Equal(t, 3, h.store.Calls(rpc.MethodGetParts), "no fetch after the failed part")
}

func TestOpen_TruncatedStreamReportsError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	data := pattern(2 * testPartSize)

	res, err := h.uploader.Upload(ctx, bytes.NewReader(data), parts.GlobalShare)
	require.NoError(t, err)

	h.store.FailGet[res.Manifest.Parts[1].Fingerprint] = "gone"

	rc := h.downloader.Open(ctx, res.Manifest, parts.GlobalShare)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.ErrorIs(t, err, rpc.ErrProtocol)
	assert.Equal(t, data[:testPartSize], got)
}

func TestOpen_EarlyClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	res, err := h.uploader.Upload(ctx, bytes.NewReader(pattern(4*testPartSize)), parts.GlobalShare)
	require.NoError(t, err)

	rc := h.downloader.Open(ctx, res.Manifest, parts.GlobalShare)

	buf := make([]byte, 4)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestDownloadFile_AtomicRename(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	data := pattern(testPartSize + 9)

	_, err := h.uploader.UploadFile(ctx, writeLocal(t, data), "/f.bin", parts.GlobalShare)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "nested", "f.bin")

	n, err := h.downloader.DownloadFile(ctx, "/f.bin", target)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = os.Stat(target + partialSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownloadFile_FailureLeavesNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	data := pattern(2 * testPartSize)

	res, err := h.uploader.UploadFile(ctx, writeLocal(t, data), "/f.bin", parts.GlobalShare)
	require.NoError(t, err)

	h.store.FailGet[res.Manifest.Parts[1].Fingerprint] = "gone"

	target := filepath.Join(t.TempDir(), "f.bin")

	_, err = h.downloader.DownloadFile(ctx, "/f.bin", target)
	require.Error(t, err)

	_, err = os.Stat(target)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(target + partialSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownloadManifestFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	data := pattern(40)

	res, err := h.uploader.Upload(ctx, bytes.NewReader(data), parts.ShareID(5))
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "out")

	_, err = h.downloader.DownloadManifestFile(ctx, res.Manifest, parts.ShareID(5), target)
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Zero(t, h.store.Calls(rpc.MethodListObjects))
}

func TestDownloadAsync(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	data := pattern(7)
	fp := h.store.PutPart(0, data)

	m := &parts.Manifest{}
	m.Append(fp, uint64(len(data)))

	var buf bytes.Buffer

	n, err := h.downloader.DownloadAsync(context.Background(), m, parts.GlobalShare, &buf).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, data, buf.Bytes())
	assert.Equal(t, fingerprint.Sum(data), fp)
}
