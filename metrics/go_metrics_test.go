package metrics

import (
	"testing"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
)

func TestNewMetrics(t *testing.T) {
	registry := metrics.NewRegistry()
	m := NewMetrics(registry, []string{"openrtb", "synthetic"}, config.DisabledMetrics{})

	ensureContains(t, registry, "active_connections", m.ConnectionCounter)
	ensureContains(t, registry, "request_time", m.RequestTimer)
	ensureContains(t, registry, "auction_time", m.AuctionTimer)
	ensureContains(t, registry, "requests.ok", m.RequestStatuses[RequestStatusOK])
	ensureContains(t, registry, "requests.replay", m.RequestStatuses[RequestStatusReplay])
	ensureContains(t, registry, "auctions.shadow.win", m.AuctionResults[auction.ModeShadow][AuctionWin])
	ensureContains(t, registry, "auctions.live.no_fill", m.AuctionResults[auction.ModeLive][AuctionNoFill])
	ensureContains(t, registry, "idempotency.hits", m.IdempotencyHitMeter)
	ensureContains(t, registry, "outcomes.dropped.queue_full", m.OutcomesDropped[OutcomeDropQueueFull])
	ensureContains(t, registry, "risk_scoring.rejected", m.RiskScoring[RiskScoringRejected])
	ensureContains(t, registry, "privacy.tcf.v2", m.PrivacyTCFv2Meter)
	ensureContains(t, registry, "adapter.openrtb.requests", m.AdapterMetrics["openrtb"].RequestMeter)
	ensureContains(t, registry, "adapter.openrtb.circuit_open", m.AdapterMetrics["openrtb"].OutcomeMeters[AdapterOutcomeCircuitOpen])
	ensureContains(t, registry, "adapter.synthetic.prices", m.AdapterMetrics["synthetic"].PriceHistogram)
	ensureContains(t, registry, "adapter.synthetic.panics", m.AdapterMetrics["synthetic"].PanicMeter)
}

func TestRecordAdapter(t *testing.T) {
	m := NewMetrics(metrics.NewRegistry(), []string{"a"}, config.DisabledMetrics{})

	m.RecordAdapterRequest(AdapterLabels{Adapter: "a", Outcome: AdapterOutcomeBid})
	m.RecordAdapterRequest(AdapterLabels{Adapter: "a", Outcome: AdapterOutcomeTimeout})
	m.RecordAdapterRequest(AdapterLabels{Adapter: "unknown", Outcome: AdapterOutcomeBid})
	m.RecordAdapterTime(AdapterLabels{Adapter: "a"}, 20*time.Millisecond)
	m.RecordAdapterPrice("a", 1.5)
	m.RecordAdapterPanic("a")

	am := m.AdapterMetrics["a"]
	assert.Equal(t, int64(2), am.RequestMeter.Count())
	assert.Equal(t, int64(1), am.OutcomeMeters[AdapterOutcomeBid].Count())
	assert.Equal(t, int64(1), am.OutcomeMeters[AdapterOutcomeTimeout].Count())
	assert.Equal(t, int64(1), am.RequestTimer.Count())
	assert.Equal(t, int64(1500), am.PriceHistogram.Max())
	assert.Equal(t, int64(1), am.PanicMeter.Count())
}

func TestAdapterLatencyDisabled(t *testing.T) {
	m := NewMetrics(metrics.NewRegistry(), []string{"a"}, config.DisabledMetrics{AdapterLatency: true})
	m.RecordAdapterTime(AdapterLabels{Adapter: "a"}, 20*time.Millisecond)
	assert.Equal(t, int64(0), m.AdapterMetrics["a"].RequestTimer.Count())
}

func TestRecordAuction(t *testing.T) {
	m := NewMetrics(metrics.NewRegistry(), nil, config.DisabledMetrics{})

	m.RecordAuction(AuctionLabels{Format: auction.FormatBanner, Result: AuctionWin}, 30*time.Millisecond)
	m.RecordAuction(AuctionLabels{Format: auction.FormatBanner, Mode: auction.ModeShadow, Result: AuctionShadow}, 30*time.Millisecond)

	assert.Equal(t, int64(1), m.AuctionResults[auction.ModeLive][AuctionWin].Count())
	assert.Equal(t, int64(1), m.AuctionResults[auction.ModeShadow][AuctionShadow].Count())
	assert.Equal(t, int64(2), m.AuctionTimer.Count())
}

func TestRecordRequestAndConnections(t *testing.T) {
	m := NewMetrics(metrics.NewRegistry(), nil, config.DisabledMetrics{})

	m.RecordConnectionAccept(true)
	m.RecordConnectionAccept(true)
	m.RecordConnectionClose(true)
	m.RecordConnectionAccept(false)
	m.RecordRequest(RequestStatusBadInput)
	m.RecordRequestTime(RequestStatusBadInput, time.Millisecond)
	m.RecordRequestTime(RequestStatusOK, time.Millisecond)

	assert.Equal(t, int64(1), m.ConnectionCounter.Count())
	assert.Equal(t, int64(1), m.ConnectionAcceptErrorMeter.Count())
	assert.Equal(t, int64(1), m.RequestStatuses[RequestStatusBadInput].Count())
	assert.Equal(t, int64(1), m.RequestTimer.Count())
}

func TestRecordSideChannels(t *testing.T) {
	m := NewMetrics(metrics.NewRegistry(), nil, config.DisabledMetrics{})

	m.RecordIdempotency(true)
	m.RecordIdempotency(false)
	m.RecordIdempotency(false)
	m.RecordOutcomeFlush(25, true)
	m.RecordOutcomeFlush(25, false)
	m.RecordOutcomeDropped(OutcomeDropWriteFailed, 25)
	m.RecordRiskScoring(RiskScoringFailed)
	m.RecordPrivacy(PrivacyLabels{GDPREnforced: true, TCFVersion: 2, LMTEnforced: true})

	assert.Equal(t, int64(1), m.IdempotencyHitMeter.Count())
	assert.Equal(t, int64(2), m.IdempotencyMissMeter.Count())
	assert.Equal(t, int64(25), m.OutcomesFlushedMeter.Count())
	assert.Equal(t, int64(1), m.OutcomesFlushErrorMeter.Count())
	assert.Equal(t, int64(25), m.OutcomesDropped[OutcomeDropWriteFailed].Count())
	assert.Equal(t, int64(1), m.RiskScoring[RiskScoringFailed].Count())
	assert.Equal(t, int64(1), m.PrivacyGDPRMeter.Count())
	assert.Equal(t, int64(1), m.PrivacyTCFv2Meter.Count())
	assert.Equal(t, int64(1), m.PrivacyLMTMeter.Count())
	assert.Equal(t, int64(0), m.PrivacyCOPPAMeter.Count())
}

func TestAdapterOutcomeFromReason(t *testing.T) {
	assert.Equal(t, AdapterOutcomeTimeout, AdapterOutcomeFromReason(auction.NoBidTimeout))
	assert.Equal(t, AdapterOutcomeCircuitOpen, AdapterOutcomeFromReason(auction.NoBidCircuitOpen))
	assert.Equal(t, AdapterOutcomeBelowFloor, AdapterOutcomeFromReason(auction.NoBidBelowFloor))
	assert.Equal(t, AdapterOutcomeNoBid, AdapterOutcomeFromReason(auction.NoBidNoFill))
	assert.Equal(t, AdapterOutcomeNoBid, AdapterOutcomeFromReason("STATUS_503"))
}

func ensureContains(t *testing.T, registry metrics.Registry, name string, metric interface{}) {
	t.Helper()
	if inRegistry := registry.Get(name); inRegistry == nil {
		t.Errorf("No metric in registry at %s.", name)
	} else if inRegistry != metric {
		t.Errorf("Bad value stored at metric %s.", name)
	}
}
