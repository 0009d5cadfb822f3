package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/copy-go/internal/journal"
	"github.com/tonimelisma/copy-go/internal/objects"
	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/internal/transfer"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path>... [remote-path]",
		Short: "Upload files",
		Long: `Upload one or more files. Parts the store already holds for the share
are not sent again.

With one argument the file is uploaded to the root folder. With two, the
second is the remote file path, or a folder when it ends in "/". With more,
the last argument is the remote folder for all files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}
}

// putJobs maps command arguments to upload jobs.
func putJobs(args []string, share parts.ShareID) []transfer.UploadJob {
	locals, dst := args, "/"

	switch {
	case len(args) == 2:
		locals, dst = args[:1], args[1]
	case len(args) > 2:
		locals, dst = args[:len(args)-1], args[len(args)-1]+"/"
	}

	jobs := make([]transfer.UploadJob, 0, len(locals))
	for _, local := range locals {
		remote := remoteTarget(dst, filepath.Base(local))
		if len(args) == 1 {
			remote = objects.CleanPath(filepath.Base(local))
		}

		jobs = append(jobs, transfer.UploadJob{LocalPath: local, RemotePath: remote, Share: share})
	}

	return jobs
}

// putOutput is the JSON schema for one `put --json` entry.
type putOutput struct {
	Local     string `json:"local"`
	Remote    string `json:"remote"`
	Size      uint64 `json:"size"`
	Parts     int    `json:"parts"`
	Sent      int    `json:"parts_sent"`
	Skipped   int    `json:"parts_skipped"`
	BytesSent uint64 `json:"bytes_sent"`
	Error     string `json:"error,omitempty"`
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := NewSession(ctx, resolvedCfg, true, buildLogger())
	if err != nil {
		return err
	}
	defer sess.Close()

	return putFiles(ctx, cmd.OutOrStdout(), sess, putJobs(args, sess.Share))
}

// putFiles runs the uploads, records each success in the journal and
// reports per file. The returned error joins every failed file.
func putFiles(ctx context.Context, w io.Writer, sess *Session, jobs []transfer.UploadJob) error {
	results, err := sess.Manager.UploadAll(ctx, jobs)

	out := make([]putOutput, 0, len(results))

	for _, r := range results {
		o := putOutput{Local: r.Job.LocalPath, Remote: r.Job.RemotePath}

		if r.Err != nil {
			o.Error = r.Err.Error()
			out = append(out, o)

			continue
		}

		st := r.Result.Stats
		o.Size, o.Parts, o.Sent, o.Skipped, o.BytesSent = st.Bytes, st.Parts, st.Sent, st.Skipped, st.BytesSent
		out = append(out, o)

		recordUpload(ctx, sess, r)

		statusf("Uploaded %s -> %s (%s, %d parts, %d already stored)\n",
			r.Job.LocalPath, r.Job.RemotePath, formatSize(st.Bytes), st.Parts, st.Skipped)
	}

	if flagJSON {
		if jsonErr := printJSON(w, out); jsonErr != nil {
			return jsonErr
		}
	}

	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	return nil
}

// recordUpload writes a journal entry. A journal failure does not fail the
// upload, which is already published.
func recordUpload(ctx context.Context, sess *Session, r transfer.UploadJobResult) {
	if sess.Journal == nil {
		return
	}

	local, absErr := filepath.Abs(r.Job.LocalPath)
	if absErr != nil {
		local = r.Job.LocalPath
	}

	st := r.Result.Stats

	err := sess.Journal.Record(ctx, &journal.Entry{
		RemotePath:   r.Result.RemotePath,
		LocalPath:    local,
		Share:        r.Job.Share,
		Manifest:     r.Result.Manifest,
		PartsSent:    st.Sent,
		PartsSkipped: st.Skipped,
		BytesSent:    st.BytesSent,
	})
	if err != nil {
		sess.Logger.Warn("recording upload in journal",
			"remote_path", r.Result.RemotePath,
			"error", err,
		)
	}
}
