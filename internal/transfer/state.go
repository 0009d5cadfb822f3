// Package transfer moves files in and out of the part store. Uploads are
// split by a Chunker, fingerprinted and deduplicated part by part before the
// resulting manifest is published; downloads fetch the parts of a manifest
// in order and write them out. A Manager runs many independent files
// concurrently.
package transfer

import "fmt"

// State is a step of an upload or download.
type State string

// Upload states, in the order a part moves through them.
const (
	StateChunking       State = "chunking"
	StateFingerprinting State = "fingerprinting"
	StateCheckingDedup  State = "checking_dedup"
	StateSkipped        State = "skipped"
	StateUploading      State = "uploading"
	StateAssembling     State = "assembling"
	StateCreating       State = "creating"
)

// Download states.
const (
	StateLookup   State = "lookup"
	StateFetching State = "fetching"
	StateWriting  State = "writing"
)

// Terminal states.
const (
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Progress is one state change reported to a ProgressFunc. Part is -1 for
// events that are not about a single part.
type Progress struct {
	State       State
	Part        int
	Offset      uint64
	Size        uint64
	Fingerprint string
}

// ProgressFunc receives state changes. It is called synchronously from the
// transfer goroutine and must not block.
type ProgressFunc func(Progress)

// Operation names used in TransferError.
const (
	opUpload   = "upload"
	opDownload = "download"
)

// TransferError reports where a file transfer stopped. The cause is
// available through errors.Is/As.
type TransferError struct {
	Op          string // "upload" or "download"
	Stage       State
	Part        int // -1 when the failure is not tied to a part
	Offset      uint64
	Fingerprint string
	PartsSent   int   // parts the store accepted before the failure
	Written     int64 // bytes delivered downstream before the failure
	Err         error
}

func (e *TransferError) Error() string {
	msg := "transfer: " + e.Op + " failed while " + string(e.Stage)

	if e.Part >= 0 {
		msg += fmt.Sprintf(" part %d (offset %d", e.Part, e.Offset)
		if e.Fingerprint != "" {
			msg += ", fingerprint " + e.Fingerprint
		}

		msg += ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Sent reports whether the store accepted any part bytes before the
// failure. False means nothing new was stored.
func (e *TransferError) Sent() bool {
	return e.PartsSent > 0
}
