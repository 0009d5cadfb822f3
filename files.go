package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/copy-go/internal/objects"
	"github.com/tonimelisma/copy-go/internal/rpc"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata, including the part list of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder. Folder deletion removes all contents and
must be confirmed with --recursive (-r).`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().BoolP("parents", "p", false, "create missing parent folders")

	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Move or rename a file or folder",
		Long: `Move or rename a file or folder. A destination ending in "/" is
treated as a folder and the source keeps its name.`,
		Args: cobra.ExactArgs(2),
		RunE: runMv,
	}
}

// remoteTarget joins name onto dst when dst names a folder (trailing slash).
func remoteTarget(dst, name string) string {
	if strings.HasSuffix(dst, "/") {
		return objects.CleanPath(path.Join(dst, name))
	}

	return objects.CleanPath(dst)
}

// baseName returns the last element of a remote path.
func baseName(remotePath string) string {
	return path.Base(objects.CleanPath(remotePath))
}

// resolveObject resolves a remote path to one object. A path that lists as
// several children is a folder.
func resolveObject(ctx context.Context, c *objects.Client, remotePath string, includeParts bool) (*objects.Object, error) {
	clean := objects.CleanPath(remotePath)

	list, err := c.ListPath(ctx, clean, includeParts)
	if err != nil {
		return nil, err
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", rpc.ErrNotFound, clean)
	}

	if len(list) == 1 && objects.CleanPath(list[0].Path) == clean {
		return &list[0], nil
	}

	return &objects.Object{Path: clean, Type: objects.TypeDir}, nil
}

// lsEntry is the JSON schema for one `ls --json` entry.
type lsEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     uint64 `json:"size"`
	Modified int64  `json:"modified,omitempty"`
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := "/"
	if len(args) > 0 {
		remotePath = args[0]
	}

	ctx := cmd.Context()
	logger := buildLogger()

	sess, err := NewSession(ctx, resolvedCfg, false, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	clean := objects.CleanPath(remotePath)
	logger.Debug("ls", "path", clean)

	list, err := sess.Objects.ListPath(ctx, clean, false)
	if err != nil {
		return err
	}

	if len(list) == 0 && clean != "/" {
		return fmt.Errorf("%w: %s", rpc.ErrNotFound, clean)
	}

	// An empty folder lists as itself.
	if len(list) == 1 && !list[0].IsFile() && objects.CleanPath(list[0].Path) == clean {
		list = nil
	}

	entries := make([]lsEntry, 0, len(list))
	for i := range list {
		o := &list[i]

		e := lsEntry{Name: baseName(o.Path), Path: o.Path, Type: o.Type, Size: uint64(o.Size)}
		if mod := o.Modified(); !mod.IsZero() {
			e.Modified = mod.Unix()
		}

		entries = append(entries, e)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), entries)
	}

	rows := make([][]string, 0, len(list))
	for i := range list {
		o := &list[i]

		name, size := baseName(o.Path), formatSize(uint64(o.Size))
		if !o.IsFile() {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(o.Modified())})
	}

	printTable(cmd.OutOrStdout(), []string{"NAME", "SIZE", "MODIFIED"}, rows)

	return nil
}

// statOutput is the JSON schema for `stat --json`.
type statOutput struct {
	Path     string     `json:"path"`
	Type     string     `json:"type"`
	ObjectID string     `json:"object_id,omitempty"`
	Share    uint64     `json:"share_id"`
	Size     uint64     `json:"size"`
	Modified int64      `json:"modified,omitempty"`
	Parts    []statPart `json:"parts,omitempty"`
}

type statPart struct {
	Offset      uint64 `json:"offset"`
	Size        uint64 `json:"size"`
	Fingerprint string `json:"fingerprint"`
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := NewSession(ctx, resolvedCfg, false, buildLogger())
	if err != nil {
		return err
	}
	defer sess.Close()

	obj, err := resolveObject(ctx, sess.Objects, args[0], true)
	if err != nil {
		return err
	}

	out := statOutput{
		Path:     obj.Path,
		Type:     obj.Type,
		ObjectID: obj.ObjectID,
		Share:    uint64(obj.Share()),
		Size:     uint64(obj.Size),
	}

	if mod := obj.Modified(); !mod.IsZero() {
		out.Modified = mod.Unix()
	}

	if obj.IsFile() {
		m, err := obj.Manifest()
		if err != nil {
			return err
		}

		for _, p := range m.Parts {
			out.Parts = append(out.Parts, statPart{Offset: p.Offset, Size: p.Size, Fingerprint: p.Fingerprint})
		}
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), out)
	}

	printStat(cmd.OutOrStdout(), obj, out)

	return nil
}

func printStat(w io.Writer, obj *objects.Object, out statOutput) {
	fmt.Fprintf(w, "Path:     %s\n", out.Path)
	fmt.Fprintf(w, "Type:     %s\n", out.Type)

	if out.ObjectID != "" {
		fmt.Fprintf(w, "ID:       %s\n", out.ObjectID)
	}

	fmt.Fprintf(w, "Share:    %d\n", out.Share)

	if !obj.IsFile() {
		return
	}

	fmt.Fprintf(w, "Size:     %s (%d bytes)\n", formatSize(out.Size), out.Size)
	fmt.Fprintf(w, "Modified: %s\n", formatTime(obj.Modified()))
	fmt.Fprintf(w, "Parts:    %d\n", len(out.Parts))

	for i, p := range out.Parts {
		fmt.Fprintf(w, "  %4d  %12d  %10d  %s\n", i, p.Offset, p.Size, p.Fingerprint)
	}
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	recursive, _ := cmd.Flags().GetBool("recursive") //nolint:errcheck // flag registered above

	sess, err := NewSession(ctx, resolvedCfg, false, buildLogger())
	if err != nil {
		return err
	}
	defer sess.Close()

	obj, err := resolveObject(ctx, sess.Objects, args[0], false)
	if err != nil {
		return err
	}

	if obj.Path == "/" {
		return errors.New("refusing to delete the root folder")
	}

	if !obj.IsFile() && !recursive {
		return fmt.Errorf("%s is a folder: use -r to delete it and its contents", obj.Path)
	}

	if err := sess.Objects.Remove(ctx, obj.Path, obj.Type); err != nil {
		return err
	}

	statusf("Deleted %s\n", obj.Path)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	parents, _ := cmd.Flags().GetBool("parents") //nolint:errcheck // flag registered above

	sess, err := NewSession(ctx, resolvedCfg, false, buildLogger())
	if err != nil {
		return err
	}
	defer sess.Close()

	clean := objects.CleanPath(args[0])
	if _, err := sess.Objects.CreateDir(ctx, clean, parents); err != nil {
		return err
	}

	statusf("Created %s\n", clean)

	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := NewSession(ctx, resolvedCfg, false, buildLogger())
	if err != nil {
		return err
	}
	defer sess.Close()

	src := objects.CleanPath(args[0])
	dst := remoteTarget(args[1], path.Base(src))

	if src == dst {
		return fmt.Errorf("source and destination are the same: %s", src)
	}

	if _, err := sess.Objects.Rename(ctx, src, dst); err != nil {
		return err
	}

	statusf("Moved %s -> %s\n", src, dst)

	return nil
}

// localTarget picks the local file for a download: the remote base name
// inside dir, or dir itself when it is not an existing folder.
func localTarget(remotePath, local string) string {
	name := baseName(remotePath)

	if local == "" {
		return name
	}

	if isDir(local) {
		return filepath.Join(local, name)
	}

	return local
}
