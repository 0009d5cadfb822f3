package transfer

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// burstFactor sizes the token bucket relative to the per-second rate.
const burstFactor = 2

// BandwidthLimiter throttles part bytes. One limiter is shared by every job
// of a Manager so the aggregate rate stays under the limit. A nil
// *BandwidthLimiter is valid and means unlimited.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns a limiter for bytesPerSec, or nil when
// bytesPerSec is zero or negative.
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	burst := int(bytesPerSec) * burstFactor

	logger.Info("bandwidth limit enabled",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// Wait blocks until n bytes may be sent.
func (bl *BandwidthLimiter) Wait(ctx context.Context, n int) error {
	if bl == nil {
		return nil
	}

	return waitBytes(ctx, bl.limiter, n)
}

// Writer wraps w so every write waits for its bytes.
func (bl *BandwidthLimiter) Writer(ctx context.Context, w io.Writer) io.Writer {
	if bl == nil {
		return w
	}

	return &limitedWriter{ctx: ctx, w: w, lim: bl.limiter}
}

type limitedWriter struct {
	ctx context.Context
	w   io.Writer
	lim *rate.Limiter
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if n > 0 {
		if werr := waitBytes(l.ctx, l.lim, n); werr != nil {
			return n, werr
		}
	}

	return n, err
}

// waitBytes takes n tokens in burst-sized steps; WaitN rejects requests
// larger than the burst.
func waitBytes(ctx context.Context, lim *rate.Limiter, n int) error {
	for n > 0 {
		take := min(n, lim.Burst())

		if err := lim.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
