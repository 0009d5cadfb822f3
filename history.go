package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/copy-go/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded uploads, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntP("limit", "n", 20, "maximum number of entries (0 for all)")

	return cmd
}

// historyEntry is the JSON schema for one `history --json` entry.
type historyEntry struct {
	ID           string `json:"id"`
	RemotePath   string `json:"remote_path"`
	LocalPath    string `json:"local_path"`
	Share        uint64 `json:"share_id"`
	Size         uint64 `json:"size"`
	Parts        int    `json:"parts"`
	PartsSent    int    `json:"parts_sent"`
	PartsSkipped int    `json:"parts_skipped"`
	BytesSent    uint64 `json:"bytes_sent"`
	CreatedAt    string `json:"created_at"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit") //nolint:errcheck // flag registered above

	if !resolvedCfg.Journal.Enabled {
		return errors.New("the upload journal is disabled in the config")
	}

	ctx := cmd.Context()

	j, err := journal.Open(ctx, resolvedCfg.Journal.Path, buildLogger())
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	entries, err := j.List(ctx, limit)
	if err != nil {
		return err
	}

	if flagJSON {
		out := make([]historyEntry, 0, len(entries))
		for i := range entries {
			e := &entries[i]
			out = append(out, historyEntry{
				ID:           e.ID.String(),
				RemotePath:   e.RemotePath,
				LocalPath:    e.LocalPath,
				Share:        uint64(e.Share),
				Size:         e.Manifest.Size,
				Parts:        len(e.Manifest.Parts),
				PartsSent:    e.PartsSent,
				PartsSkipped: e.PartsSkipped,
				BytesSent:    e.BytesSent,
				CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		return printJSON(cmd.OutOrStdout(), out)
	}

	if len(entries) == 0 {
		statusf("No uploads recorded.\n")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		rows = append(rows, []string{
			e.ID.String()[:8],
			formatTime(e.CreatedAt),
			e.RemotePath,
			formatSize(e.Manifest.Size),
			strconv.Itoa(len(e.Manifest.Parts)),
			strconv.Itoa(e.PartsSent),
			e.Share.String(),
		})
	}

	printTable(cmd.OutOrStdout(), []string{"ID", "UPLOADED", "REMOTE", "SIZE", "PARTS", "SENT", "SHARE"}, rows)

	return nil
}
