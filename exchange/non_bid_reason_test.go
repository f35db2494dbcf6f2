package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/stretchr/testify/assert"
)

func TestErrorToNoBidReason(t *testing.T) {
	testCases := []struct {
		description     string
		err             error
		expectedReason  auction.NoBidReason
		expectedFailure bool
	}{
		{
			description:     "Timeout",
			err:             &errortypes.Timeout{Message: "deadline"},
			expectedReason:  auction.NoBidTimeout,
			expectedFailure: true,
		},
		{
			description:     "Context deadline",
			err:             fmt.Errorf("post: %w", context.DeadlineExceeded),
			expectedReason:  auction.NoBidTimeout,
			expectedFailure: true,
		},
		{
			description:     "Context cancelled",
			err:             context.Canceled,
			expectedReason:  auction.NoBidTimeout,
			expectedFailure: true,
		},
		{
			description:    "Adapter specific no bid",
			err:            &errortypes.NoBid{Reason: "STATUS_404"},
			expectedReason: "STATUS_404",
		},
		{
			description:    "No bid without reason",
			err:            &errortypes.NoBid{},
			expectedReason: auction.NoBidNoFill,
		},
		{
			description:     "Bad server response",
			err:             &errortypes.BadServerResponse{Message: "status 503"},
			expectedReason:  auction.NoBidError,
			expectedFailure: true,
		},
		{
			description:     "Unknown error",
			err:             errors.New("connection reset"),
			expectedReason:  auction.NoBidError,
			expectedFailure: true,
		},
	}

	for _, test := range testCases {
		reason := errorToNoBidReason(test.err)
		assert.Equal(t, test.expectedReason, reason, test.description)
		assert.Equal(t, test.expectedFailure, countsAsFailure(reason), test.description)
	}
}
