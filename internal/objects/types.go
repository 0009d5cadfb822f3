// Package objects is the metadata side of the Copy API: listing paths,
// resolving a path to a single file, and the update_objects actions
// (create file, create dir, remove, rename) that publish an uploaded
// manifest or reshape the tree.
package objects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/tonimelisma/copy-go/internal/parts"
)

// Object types reported by the API.
const (
	TypeFile = "file"
	TypeDir  = "dir"
)

// flexUint decodes a JSON number or a quoted decimal string. The API is not
// consistent about which one it sends for ids, sizes and timestamps.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}

	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("objects: invalid numeric field %q: %w", b, err)
	}

	*f = flexUint(n)

	return nil
}

// Revision is one stored version of a file.
type Revision struct {
	RevisionID string       `json:"revision_id,omitempty"`
	Parts      []parts.Part `json:"parts"`
}

// Object is a file or directory as described by the metadata API.
type Object struct {
	ObjectID     string     `json:"object_id"`
	Path         string     `json:"path"`
	Type         string     `json:"type"`
	ShareID      flexUint   `json:"share_id"`
	Size         flexUint   `json:"size"`
	MimeType     string     `json:"mime_type,omitempty"`
	ModifiedTime flexUint   `json:"modified_time"`
	RemovedTime  string     `json:"removed_time,omitempty"`
	Revisions    []Revision `json:"revisions,omitempty"`
}

// IsFile reports whether the object is a file.
func (o *Object) IsFile() bool {
	return o.Type == TypeFile
}

// Share returns the share the object lives in.
func (o *Object) Share() parts.ShareID {
	return parts.ShareID(o.ShareID)
}

// Modified returns the modification time, zero if unknown.
func (o *Object) Modified() time.Time {
	if o.ModifiedTime == 0 {
		return time.Time{}
	}

	return time.Unix(int64(o.ModifiedTime), 0) //nolint:gosec // unix seconds fit in int64
}

// Manifest builds the manifest of the object's latest revision. Parts are
// ordered by offset; when the API omits offsets they are derived from the
// listed order. The result is validated.
func (o *Object) Manifest() (*parts.Manifest, error) {
	if !o.IsFile() {
		return nil, fmt.Errorf("objects: %s is a %s, not a file", o.Path, o.Type)
	}

	var listed []parts.Part
	if len(o.Revisions) > 0 {
		listed = slices.Clone(o.Revisions[0].Parts)
	}

	m := &parts.Manifest{Parts: make([]parts.Part, 0, len(listed))}

	if offsetsMissing(listed) {
		for _, p := range listed {
			m.Append(p.Fingerprint, p.Size)
		}
	} else {
		slices.SortStableFunc(listed, func(a, b parts.Part) int {
			switch {
			case a.Offset < b.Offset:
				return -1
			case a.Offset > b.Offset:
				return 1
			default:
				return 0
			}
		})

		for _, p := range listed {
			m.Parts = append(m.Parts, p)
			m.Size += p.Size
		}
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("objects: %s: %w", o.Path, err)
	}

	if uint64(o.Size) != 0 && uint64(o.Size) != m.Size {
		return nil, fmt.Errorf("%w: %s: parts sum to %d bytes, object size is %d",
			parts.ErrInvalidManifest, o.Path, m.Size, uint64(o.Size))
	}

	return m, nil
}

// offsetsMissing reports whether a multi-part listing carries no offsets.
func offsetsMissing(ps []parts.Part) bool {
	if len(ps) < 2 {
		return false
	}

	for _, p := range ps {
		if p.Offset != 0 {
			return false
		}
	}

	return true
}

// MarshalJSON emits numeric fields as numbers.
func (f flexUint) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(f))
}
