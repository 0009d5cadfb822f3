package objects

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/internal/rpc"
)

// maxListItems is the page size requested from list_objects. Only the first
// page is read.
const maxListItems = 100

// Update actions understood by update_objects.
const (
	actionCreate = "create"
	actionRemove = "remove"
	actionRename = "rename"
)

type listRequest struct {
	Path          string `json:"path"`
	MaxItems      int    `json:"max_items"`
	ListWatermark bool   `json:"list_watermark"`
	IncludeParts  bool   `json:"include_parts,omitempty"`
}

type listResult struct {
	Object   *Object  `json:"object"`
	Children []Object `json:"children"`
}

// meta is one update_objects entry. Fields are set per action.
type meta struct {
	Action     string       `json:"action"`
	Path       string       `json:"path"`
	ObjectType string       `json:"object_type,omitempty"`
	Recurse    *bool        `json:"recurse,omitempty"`
	NewPath    string       `json:"new_path,omitempty"`
	Size       *uint64      `json:"size,omitempty"`
	Parts      []parts.Part `json:"parts,omitempty"`
}

type updateRequest struct {
	Meta []meta `json:"meta"`
}

// Client issues metadata calls through a Transport.
type Client struct {
	transport rpc.Transport
	logger    *slog.Logger
}

// NewClient creates a metadata client on top of t.
func NewClient(t rpc.Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{transport: t, logger: logger}
}

// CleanPath normalizes a remote path: NFC form, one leading slash, no
// trailing slash, no dot segments. The root is "/".
func CleanPath(p string) string {
	p = norm.NFC.String(strings.TrimSpace(p))

	return path.Clean("/" + p)
}

// ListPath returns the children of a directory, or the object itself when
// the path names a file or an empty directory.
func (c *Client) ListPath(ctx context.Context, remotePath string, includeParts bool) ([]Object, error) {
	clean := CleanPath(remotePath)

	req := listRequest{
		Path:         clean,
		MaxItems:     maxListItems,
		IncludeParts: includeParts,
	}

	var res listResult
	if err := rpc.Invoke(ctx, c.transport, rpc.MethodListObjects, req, &res); err != nil {
		return nil, fmt.Errorf("objects: listing %s: %w", clean, err)
	}

	if len(res.Children) > 0 {
		c.logger.Debug("listed children",
			slog.String("path", clean),
			slog.Int("count", len(res.Children)),
		)

		return res.Children, nil
	}

	if res.Object == nil {
		return nil, nil
	}

	return []Object{*res.Object}, nil
}

// Lookup resolves remotePath to exactly one file, with its parts. Zero or
// several matches fail with rpc.ErrNotFound; a non-file fails with
// rpc.ErrTypeMismatch.
func (c *Client) Lookup(ctx context.Context, remotePath string) (*Object, error) {
	objs, err := c.ListPath(ctx, remotePath, true)
	if err != nil {
		return nil, err
	}

	clean := CleanPath(remotePath)

	if len(objs) != 1 {
		return nil, fmt.Errorf("%w: %s matched %d objects", rpc.ErrNotFound, clean, len(objs))
	}

	obj := objs[0]

	// A single child of a directory is not a match for the directory.
	if CleanPath(obj.Path) != clean {
		return nil, fmt.Errorf("%w: %s is a %q", rpc.ErrTypeMismatch, clean, TypeDir)
	}

	if !obj.IsFile() {
		return nil, fmt.Errorf("%w: %s is a %q", rpc.ErrTypeMismatch, clean, obj.Type)
	}

	return &obj, nil
}

// CreateFile publishes m as the content of the file at remotePath.
func (c *Client) CreateFile(ctx context.Context, remotePath string, m *parts.Manifest) (*Object, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("objects: creating %s: %w", remotePath, err)
	}

	size := m.Size
	entry := meta{
		Action:     actionCreate,
		Path:       CleanPath(remotePath),
		ObjectType: TypeFile,
		Size:       &size,
		Parts:      m.Parts,
	}

	c.logger.Info("creating file",
		slog.String("path", entry.Path),
		slog.Int("parts", len(m.Parts)),
		slog.Uint64("size", size),
	)

	return c.update(ctx, entry)
}

// CreateDir creates a directory, and its parents when recursive is set.
func (c *Client) CreateDir(ctx context.Context, remotePath string, recursive bool) (*Object, error) {
	return c.update(ctx, meta{
		Action:     actionCreate,
		Path:       CleanPath(remotePath),
		ObjectType: TypeDir,
		Recurse:    &recursive,
	})
}

// Remove deletes the object at remotePath. objectType is TypeFile or TypeDir.
func (c *Client) Remove(ctx context.Context, remotePath, objectType string) error {
	_, err := c.update(ctx, meta{
		Action:     actionRemove,
		Path:       CleanPath(remotePath),
		ObjectType: objectType,
	})

	return err
}

// Rename moves the object at src to dst.
func (c *Client) Rename(ctx context.Context, src, dst string) (*Object, error) {
	return c.update(ctx, meta{
		Action:  actionRename,
		Path:    CleanPath(src),
		NewPath: CleanPath(dst),
	})
}

// update sends one update_objects entry and returns the first object of the
// result, if the API reports one.
func (c *Client) update(ctx context.Context, entry meta) (*Object, error) {
	var res []Object
	if err := rpc.Invoke(ctx, c.transport, rpc.MethodUpdateObject, updateRequest{Meta: []meta{entry}}, &res); err != nil {
		return nil, fmt.Errorf("objects: %s %s: %w", entry.Action, entry.Path, err)
	}

	c.logger.Debug("object updated",
		slog.String("action", entry.Action),
		slog.String("path", entry.Path),
	)

	if len(res) == 0 {
		return nil, nil //nolint:nilnil // the API may acknowledge without echoing the object
	}

	return &res[0], nil
}
