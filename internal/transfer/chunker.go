package transfer

import (
	"errors"
	"fmt"
	"io"
)

// DefaultPartSize is the part size used when none is configured (1 MiB).
const DefaultPartSize = 1 << 20

// ErrInvalidPartSize is returned by NewChunker for a part size below one byte.
var ErrInvalidPartSize = errors.New("transfer: part size must be positive")

// Chunker splits a byte stream into consecutive parts. Every part except
// possibly the last is exactly partSize bytes; the last is never empty, and
// an empty stream yields no parts. Reading is lazy: at most one part is
// buffered at a time.
type Chunker struct {
	r        io.Reader
	partSize int
	done     bool
}

// NewChunker returns a Chunker reading r in parts of partSize bytes.
func NewChunker(r io.Reader, partSize int) (*Chunker, error) {
	if partSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPartSize, partSize)
	}

	return &Chunker{r: r, partSize: partSize}, nil
}

// Next returns the next part, or io.EOF after the last one. The returned
// slice is freshly allocated and owned by the caller.
func (c *Chunker) Next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}

	buf := make([]byte, c.partSize)

	n, err := io.ReadFull(c.r, buf)

	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.done = true
		return buf[:n:n], nil
	case errors.Is(err, io.EOF):
		c.done = true
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("transfer: reading part: %w", err)
	}
}
