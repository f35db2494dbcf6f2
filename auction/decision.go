package auction

import "encoding/json"

// Reason is surfaced to callers when an auction does not deliver.
type Reason string

const (
	ReasonControlArm  Reason = "CONTROL_ARM"
	ReasonNoAdapter   Reason = "NO_ADAPTER"
	ReasonNoBid       Reason = "NO_BID"
	ReasonShadowNoBid Reason = "SHADOW_NO_BID"
	ReasonShadowMode  Reason = "SHADOW_MODE"
)

// Tracking holds the signed tracking URLs of a winning response.
type Tracking struct {
	Impression string `json:"impression"`
	Click      string `json:"click"`
}

// Response is the deliverable part of a winning decision.
type Response struct {
	RequestID   string          `json:"requestId"`
	LandscapeID string          `json:"landscapeId"`
	BidID       string          `json:"bidId"`
	Adapter     string          `json:"adapter"`
	CPM         float64         `json:"cpm"`
	Currency    string          `json:"currency"`
	TTLSeconds  int             `json:"ttlSeconds"`
	CreativeURL string          `json:"creativeUrl"`
	Tracking    Tracking        `json:"tracking"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ConsentEcho *Consent        `json:"consentEcho,omitempty"`
}

// Decision is the terminal state of one auction. Candidates are kept for recording only and are
// never serialized to callers.
type Decision struct {
	Success     bool                `json:"success"`
	LandscapeID string              `json:"landscapeId"`
	Response    *Response           `json:"response,omitempty"`
	Reason      Reason              `json:"reason,omitempty"`
	LatencyMs   int64               `json:"latencyMs"`
	Candidates  []CandidateSnapshot `json:"-"`
}
