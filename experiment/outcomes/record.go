// Package outcomes records what every experiment arm decided so alternate strategies can be
// evaluated against production traffic. Recording is best effort: records are queued in memory,
// flushed in batches, and dropped when the queue is full or the store rejects a batch.
package outcomes

import (
	"encoding/json"
	"time"

	"github.com/rivalapexmediation/auction-server/auction"
)

// Status is the coarse result of one auction for an experiment arm.
type Status string

const (
	StatusWin     Status = "win"
	StatusNoFill  Status = "no_fill"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Record is one auction outcome for an experiment arm. Records are never mutated once queued.
type Record struct {
	ExperimentID string          `json:"experimentId"`
	RequestID    string          `json:"requestId"`
	PlacementID  string          `json:"placementId"`
	Arm          string          `json:"arm"`
	Mode         auction.Mode    `json:"mode"`
	Status       Status          `json:"status"`
	LandscapeID  string          `json:"landscapeId,omitempty"`
	BidID        string          `json:"bidId,omitempty"`
	Adapter      string          `json:"adapter,omitempty"`
	CPM          *float64        `json:"cpm,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	Candidates   json.RawMessage `json:"candidates,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	ErrorReason  string          `json:"errorReason,omitempty"`
	LatencyMs    int64           `json:"latencyMs"`
	CreatedAt    time.Time       `json:"createdAt"`

	// Snapshots are encoded into Candidates within the payload budget when the record is queued.
	Snapshots []auction.CandidateSnapshot `json:"-"`
}

type truncatedCandidates struct {
	Truncated bool                        `json:"truncated"`
	Total     int                         `json:"total"`
	Items     []auction.CandidateSnapshot `json:"items"`
}

type truncatedMetadata struct {
	Truncated     bool `json:"truncated"`
	OriginalBytes int  `json:"originalBytes"`
}

// EncodeCandidates serializes the snapshots within maxBytes. When they do not fit, trailing
// snapshots are dropped and the result is wrapped with the original count.
func EncodeCandidates(candidates []auction.CandidateSnapshot, maxBytes int) json.RawMessage {
	if len(candidates) == 0 {
		return nil
	}
	full, err := json.Marshal(candidates)
	if err != nil {
		return nil
	}
	if maxBytes <= 0 || len(full) <= maxBytes {
		return full
	}

	for n := len(candidates) - 1; n >= 0; n-- {
		wrapped, err := json.Marshal(truncatedCandidates{
			Truncated: true,
			Total:     len(candidates),
			Items:     candidates[:n],
		})
		if err == nil && len(wrapped) <= maxBytes {
			return wrapped
		}
	}
	return nil
}

// TruncateMetadata returns metadata unchanged when it fits in maxBytes, and a small marker
// describing the dropped payload otherwise.
func TruncateMetadata(metadata json.RawMessage, maxBytes int) json.RawMessage {
	if maxBytes <= 0 || len(metadata) <= maxBytes {
		return metadata
	}
	marker, err := json.Marshal(truncatedMetadata{Truncated: true, OriginalBytes: len(metadata)})
	if err != nil || len(marker) > maxBytes {
		return nil
	}
	return marker
}
