package currency

import (
	"fmt"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/errortypes"
)

// Normalize rewrites bid in place so that its price is expressed in target. A bid without a
// currency is assumed to already be in target.
func Normalize(conversions Conversions, bid *auction.Bid, target string) error {
	if bid.Currency == "" {
		bid.Currency = target
		return nil
	}
	rate, err := conversions.GetRate(bid.Currency, target)
	if err != nil {
		return &errortypes.NoConversionRate{
			Message: fmt.Sprintf("bid from %s in %s cannot be converted to %s: %v", bid.AdapterName, bid.Currency, target, err),
		}
	}
	bid.CPM *= rate
	bid.Currency = target
	return nil
}
