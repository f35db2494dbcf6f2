package exchange

import (
	"math"

	"github.com/asaskevich/govalidator"
	"github.com/golang/glog"
	"github.com/shopspring/decimal"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/currency"
)

// monetaryPrecision is the number of decimal places CPMs are compared at.
const monetaryPrecision int32 = 4

// bidMeetsFloor compares at monetaryPrecision so that float noise never rejects a bid at the floor.
func bidMeetsFloor(cpm, floor float64) bool {
	bidDecimal := decimal.NewFromFloat(cpm).Round(monetaryPrecision)
	floorDecimal := decimal.NewFromFloat(floor).Round(monetaryPrecision)
	return bidDecimal.GreaterThanOrEqual(floorDecimal)
}

// validateBid checks a bid returned by an adapter and normalizes its currency. It returns the
// no-bid reason when the bid cannot take part in selection.
func (e *exchange) validateBid(bid *auction.Bid, floor float64) (auction.NoBidReason, bool) {
	if bid.CPM <= 0 || math.IsNaN(bid.CPM) || math.IsInf(bid.CPM, 0) {
		return auction.NoBidInvalidBid, false
	}
	if bid.CreativeURL == "" || !govalidator.IsURL(bid.CreativeURL) {
		return auction.NoBidInvalidBid, false
	}
	if err := currency.Normalize(e.conversions, bid, e.currency); err != nil {
		glog.Warningf("Dropping bid: %v", err)
		return auction.NoBidError, false
	}
	if !bidMeetsFloor(bid.CPM, floor) {
		return auction.NoBidBelowFloor, false
	}
	return "", true
}
