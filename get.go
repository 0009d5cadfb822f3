package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/copy-go/internal/objects"
	"github.com/tonimelisma/copy-go/internal/transfer"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Long: `Download a file. The local path defaults to the remote file name in the
current folder; "-" writes to stdout.

With --into, every argument is a remote path and the files are downloaded
in parallel into the given folder.

With --from-journal, the file is rebuilt from the manifest recorded by the
last "put" of that remote path, without a metadata lookup.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runGet,
	}

	cmd.Flags().String("into", "", "download every remote path into this folder")
	cmd.Flags().Bool("from-journal", false, "use the manifest recorded in the upload journal")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	into, _ := cmd.Flags().GetString("into")              //nolint:errcheck // flag registered above
	fromJournal, _ := cmd.Flags().GetBool("from-journal") //nolint:errcheck // flag registered above

	if into == "" && len(args) > 2 {
		return errors.New("too many arguments: use --into to download several files")
	}

	ctx := cmd.Context()

	sess, err := NewSession(ctx, resolvedCfg, fromJournal, buildLogger())
	if err != nil {
		return err
	}
	defer sess.Close()

	if into != "" {
		return getInto(ctx, sess, args, into)
	}

	local := ""
	if len(args) == 2 {
		local = args[1]
	}

	if fromJournal {
		return getFromJournal(ctx, cmd.OutOrStdout(), sess, args[0], local)
	}

	if local == "-" {
		_, err := sess.Downloader.DownloadPath(ctx, args[0], cmd.OutOrStdout())
		return err
	}

	target := localTarget(args[0], local)

	n, err := sess.Downloader.DownloadFile(ctx, args[0], target)
	if err != nil {
		return err
	}

	statusf("Downloaded %s -> %s (%s)\n", objects.CleanPath(args[0]), target, formatSize(uint64(n))) //nolint:gosec // n is non-negative

	return nil
}

func getInto(ctx context.Context, sess *Session, remotes []string, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	jobs := make([]transfer.DownloadJob, 0, len(remotes))
	for _, r := range remotes {
		jobs = append(jobs, transfer.DownloadJob{RemotePath: r, LocalPath: localTarget(r, dir)})
	}

	results, err := sess.Manager.DownloadAll(ctx, jobs)

	for _, r := range results {
		if r.Err == nil {
			statusf("Downloaded %s -> %s (%s)\n", r.Job.RemotePath, r.Job.LocalPath, formatSize(uint64(r.Bytes))) //nolint:gosec // non-negative
		}
	}

	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	return nil
}

func getFromJournal(ctx context.Context, w io.Writer, sess *Session, remotePath, local string) error {
	if sess.Journal == nil {
		return errors.New("the upload journal is disabled in the config")
	}

	clean := objects.CleanPath(remotePath)

	entry, err := sess.Journal.Latest(ctx, clean)
	if err != nil {
		return err
	}

	sess.Logger.Debug("using journal manifest",
		"remote_path", clean,
		"entry", entry.ID.String(),
		"parts", len(entry.Manifest.Parts),
	)

	if local == "-" {
		_, err := sess.Downloader.Download(ctx, entry.Manifest, entry.Share, w)
		return err
	}

	target := localTarget(clean, local)

	n, err := sess.Downloader.DownloadManifestFile(ctx, entry.Manifest, entry.Share, target)
	if err != nil {
		return err
	}

	statusf("Downloaded %s -> %s (%s, from journal)\n", clean, target, formatSize(uint64(n))) //nolint:gosec // non-negative

	return nil
}

func isDir(p string) bool {
	fi, err := os.Stat(p)

	return err == nil && fi.IsDir()
}
