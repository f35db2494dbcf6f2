package auction

import "encoding/json"

// Bid is a priced offer from a single adapter.
type Bid struct {
	AdapterName string          `json:"adapter"`
	CPM         float64         `json:"cpm"`
	Currency    string          `json:"currency"`
	CreativeURL string          `json:"creativeUrl"`
	TTLSeconds  int             `json:"ttlSeconds"`
	LatencyMs   *int64          `json:"latencyMs,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// NoBidReason explains why an adapter produced no usable bid. Adapters may report their own
// reasons in addition to the ones below.
type NoBidReason string

const (
	NoBidTimeout     NoBidReason = "TIMEOUT"
	NoBidError       NoBidReason = "ERROR"
	NoBidCircuitOpen NoBidReason = "CIRCUIT_OPEN"
	NoBidNoFill      NoBidReason = "NO_FILL"
	NoBidBelowFloor  NoBidReason = "BELOW_FLOOR"
	NoBidInvalidBid  NoBidReason = "INVALID_BID"
)

// NoBid is the structured absence of a bid.
type NoBid struct {
	AdapterName string      `json:"adapter"`
	Reason      NoBidReason `json:"reason"`
}

// Outcome is exactly one of Bid or NoBid, as produced by a single adapter within one auction.
type Outcome struct {
	Bid   *Bid
	NoBid *NoBid
}

// Adapter returns the adapter name of whichever side is set.
func (o Outcome) Adapter() string {
	if o.Bid != nil {
		return o.Bid.AdapterName
	}
	if o.NoBid != nil {
		return o.NoBid.AdapterName
	}
	return ""
}

// Snapshot denormalizes the outcome for audit.
func (o Outcome) Snapshot() CandidateSnapshot {
	if o.Bid != nil {
		cpm := o.Bid.CPM
		return CandidateSnapshot{
			Adapter:   o.Bid.AdapterName,
			Status:    StatusBid,
			CPM:       &cpm,
			LatencyMs: o.Bid.LatencyMs,
		}
	}
	s := CandidateSnapshot{Status: StatusNoBid}
	if o.NoBid != nil {
		s.Adapter = o.NoBid.AdapterName
		s.Reason = string(o.NoBid.Reason)
	}
	return s
}

const (
	StatusBid   = "bid"
	StatusNoBid = "nobid"
)

// CandidateSnapshot is one adapter's result as retained for audit and experiment recording.
type CandidateSnapshot struct {
	Adapter   string   `json:"adapter"`
	Status    string   `json:"status"`
	CPM       *float64 `json:"cpm,omitempty"`
	LatencyMs *int64   `json:"latencyMs,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}
