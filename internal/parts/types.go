// Package parts implements the part store protocol of the Copy API:
// checking whether the store already holds a part, sending a part, and
// fetching a part, plus the Part and Manifest types that describe how a
// file is assembled from parts.
package parts

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tonimelisma/copy-go/pkg/fingerprint"
)

// ErrInvalidManifest is returned when a manifest's offsets or size do not
// describe a contiguous file.
var ErrInvalidManifest = errors.New("parts: invalid manifest")

// ShareID scopes part dedup and storage to a namespace. Identical bytes
// stored under different shares are never deduplicated against each other.
type ShareID uint64

// GlobalShare is the share used when the caller does not know a more
// specific one.
const GlobalShare ShareID = 0

func (s ShareID) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// ParseShareID parses the decimal form produced by String.
func ParseShareID(s string) (ShareID, error) {
	if s == "" {
		return GlobalShare, nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parts: invalid share id %q: %w", s, err)
	}

	return ShareID(n), nil
}

// Part locates one contiguous slice of a file by content. Fingerprint and
// Size together identify the bytes in the store; Offset is the position of
// the slice within the file.
type Part struct {
	Fingerprint string `json:"fingerprint"`
	Size        uint64 `json:"size"`
	Offset      uint64 `json:"offset"`
}

// End returns the offset one past the last byte of the part.
func (p Part) End() uint64 {
	return p.Offset + p.Size
}

// Manifest is the ordered list of parts that reassembles a file.
// Size is the sum of all part sizes.
type Manifest struct {
	Parts []Part `json:"parts"`
	Size  uint64 `json:"size"`
}

// Append records the next part of the file. Its offset is the running size
// before the part; the running size then grows by size.
func (m *Manifest) Append(fingerprint string, size uint64) Part {
	p := Part{Fingerprint: fingerprint, Size: size, Offset: m.Size}
	m.Parts = append(m.Parts, p)
	m.Size += size

	return p
}

// Validate checks that offsets start at zero, each equals the end of the
// previous part, every part is non-empty with a well-formed fingerprint,
// and Size equals the sum of all sizes.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", ErrInvalidManifest)
	}

	var running uint64

	for i, p := range m.Parts {
		if p.Offset != running {
			return fmt.Errorf("%w: part %d has offset %d, want %d", ErrInvalidManifest, i, p.Offset, running)
		}

		if !fingerprint.Valid(p.Fingerprint) {
			return fmt.Errorf("%w: part %d has malformed fingerprint %q", ErrInvalidManifest, i, p.Fingerprint)
		}

		if p.Size == 0 {
			return fmt.Errorf("%w: part %d is empty", ErrInvalidManifest, i)
		}

		running = p.End()
	}

	if running != m.Size {
		return fmt.Errorf("%w: parts sum to %d bytes, manifest says %d", ErrInvalidManifest, running, m.Size)
	}

	return nil
}
