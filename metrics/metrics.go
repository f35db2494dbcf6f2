package metrics

import (
	"time"

	"github.com/rivalapexmediation/auction-server/auction"
)

// RequestStatus is the outcome of a call to the auction endpoint.
type RequestStatus string

const (
	RequestStatusOK       RequestStatus = "ok"
	RequestStatusBadInput RequestStatus = "badinput"
	RequestStatusErr      RequestStatus = "err"
	RequestStatusReplay   RequestStatus = "replay"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
		RequestStatusReplay,
	}
}

// AuctionResult is the terminal state an auction reached.
type AuctionResult string

const (
	AuctionWin       AuctionResult = "win"
	AuctionNoFill    AuctionResult = "no_fill"
	AuctionNoAdapter AuctionResult = "no_adapter"
	AuctionControl   AuctionResult = "control"
	AuctionShadow    AuctionResult = "shadow"
	AuctionError     AuctionResult = "error"
)

func AuctionResults() []AuctionResult {
	return []AuctionResult{
		AuctionWin,
		AuctionNoFill,
		AuctionNoAdapter,
		AuctionControl,
		AuctionShadow,
		AuctionError,
	}
}

// AdapterOutcome buckets the result of a single adapter call. Adapter specific no-bid reasons
// are folded into AdapterOutcomeNoBid to keep cardinality bounded.
type AdapterOutcome string

const (
	AdapterOutcomeBid         AdapterOutcome = "bid"
	AdapterOutcomeNoBid       AdapterOutcome = "no_bid"
	AdapterOutcomeTimeout     AdapterOutcome = "timeout"
	AdapterOutcomeError       AdapterOutcome = "error"
	AdapterOutcomeCircuitOpen AdapterOutcome = "circuit_open"
	AdapterOutcomeBelowFloor  AdapterOutcome = "below_floor"
	AdapterOutcomeInvalidBid  AdapterOutcome = "invalid_bid"
)

func AdapterOutcomes() []AdapterOutcome {
	return []AdapterOutcome{
		AdapterOutcomeBid,
		AdapterOutcomeNoBid,
		AdapterOutcomeTimeout,
		AdapterOutcomeError,
		AdapterOutcomeCircuitOpen,
		AdapterOutcomeBelowFloor,
		AdapterOutcomeInvalidBid,
	}
}

// AdapterOutcomeFromReason maps a no-bid reason onto its metric bucket.
func AdapterOutcomeFromReason(reason auction.NoBidReason) AdapterOutcome {
	switch reason {
	case auction.NoBidTimeout:
		return AdapterOutcomeTimeout
	case auction.NoBidError:
		return AdapterOutcomeError
	case auction.NoBidCircuitOpen:
		return AdapterOutcomeCircuitOpen
	case auction.NoBidBelowFloor:
		return AdapterOutcomeBelowFloor
	case auction.NoBidInvalidBid:
		return AdapterOutcomeInvalidBid
	}
	return AdapterOutcomeNoBid
}

// OutcomeDropReason explains why experiment outcome records were discarded.
type OutcomeDropReason string

const (
	OutcomeDropQueueFull   OutcomeDropReason = "queue_full"
	OutcomeDropWriteFailed OutcomeDropReason = "write_failed"
)

func OutcomeDropReasons() []OutcomeDropReason {
	return []OutcomeDropReason{
		OutcomeDropQueueFull,
		OutcomeDropWriteFailed,
	}
}

// RiskScoringStatus is the fate of a fire-and-forget scoring call.
type RiskScoringStatus string

const (
	RiskScoringOK       RiskScoringStatus = "ok"
	RiskScoringRejected RiskScoringStatus = "rejected"
	RiskScoringFailed   RiskScoringStatus = "failed"
)

func RiskScoringStatuses() []RiskScoringStatus {
	return []RiskScoringStatus{
		RiskScoringOK,
		RiskScoringRejected,
		RiskScoringFailed,
	}
}

// AuctionLabels describes a finished auction.
type AuctionLabels struct {
	Format auction.AdFormat
	Mode   auction.Mode
	Result AuctionResult
}

// AdapterLabels describes a single adapter call.
type AdapterLabels struct {
	Adapter string
	Outcome AdapterOutcome
}

// PrivacyLabels describes the privacy regulations that applied to an auction.
type PrivacyLabels struct {
	GDPREnforced  bool
	TCFVersion    uint8
	CCPAProvided  bool
	CCPAEnforced  bool
	COPPAEnforced bool
	LMTEnforced   bool
}

// MetricsEngine is a generic interface to record metrics into the desired backend.
// Implementations must never block or fail the caller.
type MetricsEngine interface {
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
	RecordRequest(status RequestStatus)
	RecordRequestTime(status RequestStatus, length time.Duration)
	RecordAuction(labels AuctionLabels, length time.Duration)
	RecordAdapterRequest(labels AdapterLabels)
	RecordAdapterTime(labels AdapterLabels, length time.Duration)
	RecordAdapterPrice(adapter string, cpm float64)
	RecordAdapterPanic(adapter string)
	RecordIdempotency(hit bool)
	RecordOutcomeFlush(records int, success bool)
	RecordOutcomeDropped(reason OutcomeDropReason, count int)
	RecordRiskScoring(status RiskScoringStatus)
	RecordPrivacy(labels PrivacyLabels)
}
