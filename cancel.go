package tsunami

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// DefaultTimeout is the per-call timeout applied when neither the client
// nor the call options override it.
const DefaultTimeout = 15 * time.Second

// errCallTimeout is the cancellation cause installed by the per-call
// timer. It is distinguishable from the caller's own cancellation so the
// reported failure names whichever source fired first.
var errCallTimeout = errors.New("tsunami: call timed out")

// withCallTimeout derives the single cancellation context for one call.
// The caller's context and the timeout timer compose into one token; the
// returned CancelFunc releases the timer on every exit path.
func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeoutCause(ctx, d, errCallTimeout)
}

// classifyTransportError maps a transport failure onto the error
// taxonomy. The cancellation cause decides between timeout and caller
// cancellation; everything else is a network-level failure.
func classifyTransportError(ctx context.Context, rawURL string, err error) *Error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errCallTimeout), errors.Is(err, context.DeadlineExceeded):
		e := NewError(CodeTimeout, "call timed out")
		e.URL = rawURL
		return e
	case errors.Is(err, context.Canceled), errors.Is(cause, context.Canceled):
		e := NewError(CodeCanceled, "call canceled")
		e.URL = rawURL
		return e
	}

	msg := err.Error()
	var uerr *url.Error
	if errors.As(err, &uerr) {
		msg = uerr.Err.Error()
	}
	e := Errorf(CodeNetwork, "transport failure: %s", msg)
	e.URL = rawURL
	return e
}
