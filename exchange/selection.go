package exchange

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"github.com/rivalapexmediation/auction-server/auction"
)

// selectWinner returns the best bid, or nil when there are none. Bids are ordered by cpm
// descending, then by reported latency ascending with unknown latency last, then by adapter name.
// The result only depends on the set of outcomes, never on their order.
func selectWinner(outcomes []auction.Outcome) *auction.Bid {
	bids := make([]*auction.Bid, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Bid != nil {
			bids = append(bids, o.Bid)
		}
	}
	if len(bids) == 0 {
		return nil
	}
	sort.Slice(bids, func(i, j int) bool {
		return ranksBefore(bids[i], bids[j])
	})
	return bids[0]
}

func ranksBefore(a, b *auction.Bid) bool {
	if a.CPM != b.CPM {
		return a.CPM > b.CPM
	}
	switch {
	case a.LatencyMs != nil && b.LatencyMs == nil:
		return true
	case a.LatencyMs == nil && b.LatencyMs != nil:
		return false
	case a.LatencyMs != nil && *a.LatencyMs != *b.LatencyMs:
		return *a.LatencyMs < *b.LatencyMs
	}
	return a.AdapterName < b.AdapterName
}

// NewLandscapeID derives the audit correlation id of an auction. Ids are fixed length and,
// because issuedAt is part of the input, differ between calls for the same request and bid.
func NewLandscapeID(requestID, bidID string, issuedAt time.Time) string {
	data := fmt.Sprintf("%s|%s|%d", requestID, bidID, issuedAt.UnixNano())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
