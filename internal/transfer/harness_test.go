package transfer

import (
	"testing"

	"github.com/tonimelisma/copy-go/internal/objects"
	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/testutil"
)

const testPartSize = 16

type harness struct {
	store      *testutil.Store
	meta       *objects.Client
	uploader   *Uploader
	downloader *Downloader
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := testutil.NewStore()
	pc := parts.NewClient(store, nil)
	meta := objects.NewClient(store, nil)

	return &harness{
		store:      store,
		meta:       meta,
		uploader:   NewUploader(pc, meta, testPartSize, nil),
		downloader: NewDownloader(pc, meta, nil),
	}
}
