package metrics

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
)

// Metrics is the go-metrics implementation of MetricsEngine, reported through influxdb.
type Metrics struct {
	MetricsRegistry            metrics.Registry
	ConnectionCounter          metrics.Counter
	ConnectionAcceptErrorMeter metrics.Meter
	ConnectionCloseErrorMeter  metrics.Meter
	RequestStatuses            map[RequestStatus]metrics.Meter
	RequestTimer               metrics.Timer
	AuctionResults             map[auction.Mode]map[AuctionResult]metrics.Meter
	AuctionTimer               metrics.Timer
	IdempotencyHitMeter        metrics.Meter
	IdempotencyMissMeter       metrics.Meter
	OutcomesFlushedMeter       metrics.Meter
	OutcomesFlushErrorMeter    metrics.Meter
	OutcomesDropped            map[OutcomeDropReason]metrics.Meter
	RiskScoring                map[RiskScoringStatus]metrics.Meter
	PrivacyGDPRMeter           metrics.Meter
	PrivacyTCFv2Meter          metrics.Meter
	PrivacyCCPAProvidedMeter   metrics.Meter
	PrivacyCCPAMeter           metrics.Meter
	PrivacyCOPPAMeter          metrics.Meter
	PrivacyLMTMeter            metrics.Meter

	AdapterMetrics map[string]*AdapterMetrics

	disabled config.DisabledMetrics
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	OutcomeMeters  map[AdapterOutcome]metrics.Meter
	RequestMeter   metrics.Meter
	RequestTimer   metrics.Timer
	PriceHistogram metrics.Histogram
	PanicMeter     metrics.Meter
}

// NewBlankMetrics creates a new Metrics object with all blank metrics object. This may also be useful for
// testing routines to ensure that no metrics are written anywhere.
func NewBlankMetrics(registry metrics.Registry, adapters []string, disabled config.DisabledMetrics) *Metrics {
	blankMeter := &metrics.NilMeter{}
	m := &Metrics{
		MetricsRegistry:            registry,
		ConnectionCounter:          metrics.NilCounter{},
		ConnectionAcceptErrorMeter: blankMeter,
		ConnectionCloseErrorMeter:  blankMeter,
		RequestStatuses:            make(map[RequestStatus]metrics.Meter),
		RequestTimer:               &metrics.NilTimer{},
		AuctionResults:             make(map[auction.Mode]map[AuctionResult]metrics.Meter),
		AuctionTimer:               &metrics.NilTimer{},
		IdempotencyHitMeter:        blankMeter,
		IdempotencyMissMeter:       blankMeter,
		OutcomesFlushedMeter:       blankMeter,
		OutcomesFlushErrorMeter:    blankMeter,
		OutcomesDropped:            make(map[OutcomeDropReason]metrics.Meter),
		RiskScoring:                make(map[RiskScoringStatus]metrics.Meter),
		PrivacyGDPRMeter:           blankMeter,
		PrivacyTCFv2Meter:          blankMeter,
		PrivacyCCPAProvidedMeter:   blankMeter,
		PrivacyCCPAMeter:           blankMeter,
		PrivacyCOPPAMeter:          blankMeter,
		PrivacyLMTMeter:            blankMeter,

		AdapterMetrics: make(map[string]*AdapterMetrics, len(adapters)),

		disabled: disabled,
	}

	for _, s := range RequestStatuses() {
		m.RequestStatuses[s] = blankMeter
	}
	for _, mode := range auction.Modes() {
		m.AuctionResults[mode] = make(map[AuctionResult]metrics.Meter)
		for _, r := range AuctionResults() {
			m.AuctionResults[mode][r] = blankMeter
		}
	}
	for _, r := range OutcomeDropReasons() {
		m.OutcomesDropped[r] = blankMeter
	}
	for _, s := range RiskScoringStatuses() {
		m.RiskScoring[s] = blankMeter
	}
	for _, a := range adapters {
		m.AdapterMetrics[a] = makeBlankAdapterMetrics()
	}
	return m
}

// NewMetrics creates a new Metrics object with every metric registered in registry.
func NewMetrics(registry metrics.Registry, adapters []string, disabled config.DisabledMetrics) *Metrics {
	m := NewBlankMetrics(registry, adapters, disabled)
	m.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	m.ConnectionAcceptErrorMeter = metrics.GetOrRegisterMeter("connection_accept_errors", registry)
	m.ConnectionCloseErrorMeter = metrics.GetOrRegisterMeter("connection_close_errors", registry)
	m.RequestTimer = metrics.GetOrRegisterTimer("request_time", registry)
	m.AuctionTimer = metrics.GetOrRegisterTimer("auction_time", registry)
	m.IdempotencyHitMeter = metrics.GetOrRegisterMeter("idempotency.hits", registry)
	m.IdempotencyMissMeter = metrics.GetOrRegisterMeter("idempotency.misses", registry)
	m.OutcomesFlushedMeter = metrics.GetOrRegisterMeter("outcomes.flushed", registry)
	m.OutcomesFlushErrorMeter = metrics.GetOrRegisterMeter("outcomes.flush_errors", registry)
	m.PrivacyGDPRMeter = metrics.GetOrRegisterMeter("privacy.gdpr_enforced", registry)
	m.PrivacyTCFv2Meter = metrics.GetOrRegisterMeter("privacy.tcf.v2", registry)
	m.PrivacyCCPAProvidedMeter = metrics.GetOrRegisterMeter("privacy.ccpa_provided", registry)
	m.PrivacyCCPAMeter = metrics.GetOrRegisterMeter("privacy.ccpa_enforced", registry)
	m.PrivacyCOPPAMeter = metrics.GetOrRegisterMeter("privacy.coppa_enforced", registry)
	m.PrivacyLMTMeter = metrics.GetOrRegisterMeter("privacy.lmt_enforced", registry)

	for s := range m.RequestStatuses {
		m.RequestStatuses[s] = metrics.GetOrRegisterMeter("requests."+string(s), registry)
	}
	for mode, results := range m.AuctionResults {
		for r := range results {
			results[r] = metrics.GetOrRegisterMeter(fmt.Sprintf("auctions.%s.%s", mode, r), registry)
		}
	}
	for r := range m.OutcomesDropped {
		m.OutcomesDropped[r] = metrics.GetOrRegisterMeter("outcomes.dropped."+string(r), registry)
	}
	for s := range m.RiskScoring {
		m.RiskScoring[s] = metrics.GetOrRegisterMeter("risk_scoring."+string(s), registry)
	}
	for name, am := range m.AdapterMetrics {
		registerAdapterMetrics(registry, name, am)
	}
	return m
}

func makeBlankAdapterMetrics() *AdapterMetrics {
	blankMeter := &metrics.NilMeter{}
	am := &AdapterMetrics{
		OutcomeMeters:  make(map[AdapterOutcome]metrics.Meter),
		RequestMeter:   blankMeter,
		RequestTimer:   &metrics.NilTimer{},
		PriceHistogram: &metrics.NilHistogram{},
		PanicMeter:     blankMeter,
	}
	for _, o := range AdapterOutcomes() {
		am.OutcomeMeters[o] = blankMeter
	}
	return am
}

func registerAdapterMetrics(registry metrics.Registry, adapter string, am *AdapterMetrics) {
	am.RequestMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests", adapter), registry)
	am.RequestTimer = metrics.GetOrRegisterTimer(fmt.Sprintf("adapter.%s.request_time", adapter), registry)
	am.PriceHistogram = metrics.GetOrRegisterHistogram(fmt.Sprintf("adapter.%s.prices", adapter), registry, metrics.NewExpDecaySample(1028, 0.015))
	am.PanicMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.panics", adapter), registry)
	for o := range am.OutcomeMeters {
		am.OutcomeMeters[o] = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.%s", adapter, o), registry)
	}
}

func (me *Metrics) adapterMetrics(adapter string) *AdapterMetrics {
	am, ok := me.AdapterMetrics[adapter]
	if !ok {
		glog.Errorf("Trying to run adapter metrics on %s: adapter metrics not found", adapter)
		return nil
	}
	return am
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionAcceptErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionCloseErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordRequest(status RequestStatus) {
	if m, ok := me.RequestStatuses[status]; ok {
		m.Mark(1)
	}
}

// RecordRequestTime only records successful requests, as failed ones return before any auction work.
func (me *Metrics) RecordRequestTime(status RequestStatus, length time.Duration) {
	if status == RequestStatusOK {
		me.RequestTimer.Update(length)
	}
}

func (me *Metrics) RecordAuction(labels AuctionLabels, length time.Duration) {
	mode := labels.Mode
	if mode == "" {
		mode = auction.ModeLive
	}
	if m, ok := me.AuctionResults[mode][labels.Result]; ok {
		m.Mark(1)
	}
	me.AuctionTimer.Update(length)
}

func (me *Metrics) RecordAdapterRequest(labels AdapterLabels) {
	am := me.adapterMetrics(labels.Adapter)
	if am == nil {
		return
	}
	am.RequestMeter.Mark(1)
	if m, ok := am.OutcomeMeters[labels.Outcome]; ok {
		m.Mark(1)
	}
}

func (me *Metrics) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	if me.disabled.AdapterLatency {
		return
	}
	if am := me.adapterMetrics(labels.Adapter); am != nil {
		am.RequestTimer.Update(length)
	}
}

// RecordAdapterPrice records the cpm in thousandths of the auction currency, as histograms only hold integers.
func (me *Metrics) RecordAdapterPrice(adapter string, cpm float64) {
	if am := me.adapterMetrics(adapter); am != nil {
		am.PriceHistogram.Update(int64(cpm * 1000))
	}
}

func (me *Metrics) RecordAdapterPanic(adapter string) {
	if am := me.adapterMetrics(adapter); am != nil {
		am.PanicMeter.Mark(1)
	}
}

func (me *Metrics) RecordIdempotency(hit bool) {
	if hit {
		me.IdempotencyHitMeter.Mark(1)
	} else {
		me.IdempotencyMissMeter.Mark(1)
	}
}

func (me *Metrics) RecordOutcomeFlush(records int, success bool) {
	if success {
		me.OutcomesFlushedMeter.Mark(int64(records))
	} else {
		me.OutcomesFlushErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordOutcomeDropped(reason OutcomeDropReason, count int) {
	if m, ok := me.OutcomesDropped[reason]; ok {
		m.Mark(int64(count))
	}
}

func (me *Metrics) RecordRiskScoring(status RiskScoringStatus) {
	if m, ok := me.RiskScoring[status]; ok {
		m.Mark(1)
	}
}

func (me *Metrics) RecordPrivacy(labels PrivacyLabels) {
	if labels.GDPREnforced {
		me.PrivacyGDPRMeter.Mark(1)
		if labels.TCFVersion == 2 {
			me.PrivacyTCFv2Meter.Mark(1)
		}
	}
	if labels.CCPAProvided {
		me.PrivacyCCPAProvidedMeter.Mark(1)
	}
	if labels.CCPAEnforced {
		me.PrivacyCCPAMeter.Mark(1)
	}
	if labels.COPPAEnforced {
		me.PrivacyCOPPAMeter.Mark(1)
	}
	if labels.LMTEnforced {
		me.PrivacyLMTMeter.Mark(1)
	}
}
