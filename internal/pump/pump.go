// Package pump implements the bidirectional byte relay that joins the
// inbound and outbound channels of a session once a tunnel has been
// established, grounded on the teacher's proxy.CopyBidirectional but
// generalized to the tunnel.Channel abstraction (independent cancel-read/
// cancel-write halves) and the bounded half-close grace period spec.md §4.4
// requires.
package pump

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/h2s5proxy/bridge/internal/tunnel"
)

// BufferSize is the per-direction relay buffer size.
const BufferSize = 4096

// DefaultGracePeriod is how long the pump waits for the second direction to
// finish naturally once the first has completed, before forcing it closed.
const DefaultGracePeriod = 2000 * time.Millisecond

// Run relays bytes between a and b until both directions have ended.
//
// Each direction ends cleanly on end-of-stream (it flushes its writer and
// reports no error) or is cut short by a read/write error. A clean end on
// one side starts a gracePeriod countdown for the other; if the other
// hasn't ended naturally by then, the shared context is canceled, forcing
// its blocked read/write to unblock via CancelRead/CancelWrite. An error on
// either side cancels the shared context immediately, since there is no
// reason to wait out the grace period for a session that's already broken.
//
// Run returns the first non-nil error encountered, or nil if both
// directions ended cleanly (whether naturally or via the grace-period
// cancellation).
func Run(ctx context.Context, a, b tunnel.Channel, gracePeriod time.Duration) error {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 2)

	var g errgroup.Group
	g.Go(func() error { return run(cctx, cancel, done, a, b) })
	g.Go(func() error { return run(cctx, cancel, done, b, a) })
	g.Go(func() error {
		select {
		case <-done:
		case <-cctx.Done():
			return nil
		}
		select {
		case <-done:
		case <-time.After(gracePeriod):
			cancel()
		case <-cctx.Done():
		}
		return nil
	})

	return g.Wait()
}

func run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, src, dst tunnel.Channel) error {
	err := direction(ctx, src, dst)
	if err != nil {
		if ctx.Err() != nil {
			// ctx was already canceled — by the peer direction's real error
			// or by the grace-period timeout — before this Read/Write
			// failed. That's an expected forced shutdown, not a transfer
			// error in its own right.
			return nil
		}
		cancel()
		return err
	}
	done <- struct{}{}
	return nil
}

// direction copies src into dst until src ends, honoring ctx cancellation
// by force-canceling its own read half and the destination's write half.
func direction(ctx context.Context, src, dst tunnel.Channel) error {
	stop := context.AfterFunc(ctx, func() {
		_ = src.CancelRead()
		_ = dst.CancelWrite()
	})
	defer stop()

	buf := make([]byte, BufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := dst.Flush(); ferr != nil {
				return ferr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return dst.Flush()
			}
			return rerr
		}
	}
}
