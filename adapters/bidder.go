package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
)

// Adapter participates in auctions as a single bid source.
type Adapter interface {
	// RequestBid asks the bid source for a price on the opportunity.
	//
	// A nil error must come with a non-nil Bid. Declining to bid is reported through the error:
	// an *errortypes.NoBid carries an adapter specific reason, an *errortypes.Timeout means the
	// context expired first, and anything else is treated as an adapter error.
	//
	// Implementations must return promptly once ctx is done.
	RequestBid(ctx context.Context, request *auction.BidOpportunity) (*auction.Bid, error)
}

// Descriptor is the static description of a registered adapter.
type Descriptor struct {
	Name    string
	Formats []auction.AdFormat
	// Timeout is the per adapter ceiling. The auction may give the adapter less when its own
	// budget is nearly spent.
	Timeout time.Duration
}

// Supports reports whether the adapter can bid on the given format.
func (d Descriptor) Supports(format auction.AdFormat) bool {
	for _, f := range d.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Builder builds a new instance of an adapter from its configuration.
type Builder func(name string, cfg config.Adapter, client *http.Client) (Adapter, error)

// AdapterFunc lets an ordinary function act as an Adapter.
type AdapterFunc func(ctx context.Context, request *auction.BidOpportunity) (*auction.Bid, error)

func (f AdapterFunc) RequestBid(ctx context.Context, request *auction.BidOpportunity) (*auction.Bid, error) {
	return f(ctx, request)
}
