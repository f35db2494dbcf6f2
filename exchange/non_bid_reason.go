package exchange

import (
	"context"
	"errors"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/errortypes"
)

// errorToNoBidReason maps an adapter error onto the reason surfaced in the candidate snapshot.
func errorToNoBidReason(err error) auction.NoBidReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return auction.NoBidTimeout
	}
	switch errortypes.ReadCode(err) {
	case errortypes.TimeoutErrorCode:
		return auction.NoBidTimeout
	case errortypes.NoBidErrorCode:
		var noBid *errortypes.NoBid
		if errors.As(err, &noBid) && noBid.Reason != "" {
			return auction.NoBidReason(noBid.Reason)
		}
		return auction.NoBidNoFill
	}
	return auction.NoBidError
}

// countsAsFailure reports whether a raw adapter result should trip the circuit breaker. Declining
// to bid is a healthy answer; only timeouts and errors count.
func countsAsFailure(reason auction.NoBidReason) bool {
	return reason == auction.NoBidTimeout || reason == auction.NoBidError
}
