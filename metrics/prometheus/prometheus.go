package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry

	// General Metrics
	connectionsClosed prometheus.Counter
	connectionsError  *prometheus.CounterVec
	connectionsOpened prometheus.Counter
	requests          *prometheus.CounterVec
	requestsTimer     *prometheus.HistogramVec
	auctions          *prometheus.CounterVec
	auctionTimer      *prometheus.HistogramVec
	idempotency       *prometheus.CounterVec
	outcomesFlushed   *prometheus.CounterVec
	outcomesDropped   *prometheus.CounterVec
	riskScoring       *prometheus.CounterVec
	privacyCCPA       *prometheus.CounterVec
	privacyCOPPA      prometheus.Counter
	privacyLMT        prometheus.Counter
	privacyTCF        *prometheus.CounterVec

	// Adapter Metrics
	adapterRequests      *prometheus.CounterVec
	adapterRequestsTimer *prometheus.HistogramVec
	adapterPrices        *prometheus.HistogramVec
	adapterPanics        *prometheus.CounterVec

	metricsDisabled config.DisabledMetrics
}

const (
	adapterLabel         = "adapter"
	connectionErrorLabel = "connection_error"
	dropReasonLabel      = "reason"
	formatLabel          = "format"
	modeLabel            = "mode"
	optOutLabel          = "opt_out"
	outcomeLabel         = "outcome"
	requestStatusLabel   = "request_status"
	resultLabel          = "result"
	statusLabel          = "status"
	successLabel         = "success"
	versionLabel         = "version"
)

const (
	connectionAcceptError = "accept"
	connectionCloseError  = "close"
)

const (
	idempotencyHit  = "hit"
	idempotencyMiss = "miss"
)

// NewMetrics initializes a new Prometheus metrics instance.
func NewMetrics(cfg config.PrometheusMetrics, disabledMetrics config.DisabledMetrics) *Metrics {
	standardTimeBuckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.5, 1}
	cpmBuckets := []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10, 20, 50}

	m := Metrics{}
	m.Registry = prometheus.NewRegistry()
	m.metricsDisabled = disabledMetrics

	m.connectionsClosed = newCounterWithoutLabels(cfg, m.Registry,
		"connections_closed",
		"Count of successful connections closed to the auction server.")

	m.connectionsError = newCounter(cfg, m.Registry,
		"connections_error",
		"Count of errors for connection open and close attempts to the auction server labeled by type.",
		[]string{connectionErrorLabel})

	m.connectionsOpened = newCounterWithoutLabels(cfg, m.Registry,
		"connections_opened",
		"Count of successful connections opened to the auction server.")

	m.requests = newCounter(cfg, m.Registry,
		"requests",
		"Count of total requests to the auction endpoint labeled by status.",
		[]string{requestStatusLabel})

	m.requestsTimer = newHistogramVec(cfg, m.Registry,
		"request_time_seconds",
		"Seconds to resolve successful auction requests.",
		[]string{requestStatusLabel},
		standardTimeBuckets)

	m.auctions = newCounter(cfg, m.Registry,
		"auctions",
		"Count of completed auctions labeled by ad format, experiment mode and result.",
		[]string{formatLabel, modeLabel, resultLabel})

	m.auctionTimer = newHistogramVec(cfg, m.Registry,
		"auction_time_seconds",
		"Seconds from the start of decision making to the terminal state of an auction.",
		[]string{modeLabel},
		standardTimeBuckets)

	m.idempotency = newCounter(cfg, m.Registry,
		"idempotency_lookups",
		"Count of idempotency cache lookups labeled by hit or miss.",
		[]string{resultLabel})

	m.outcomesFlushed = newCounter(cfg, m.Registry,
		"experiment_outcomes_flushed",
		"Count of experiment outcome records written, labeled by success.",
		[]string{successLabel})

	m.outcomesDropped = newCounter(cfg, m.Registry,
		"experiment_outcomes_dropped",
		"Count of experiment outcome records discarded, labeled by reason.",
		[]string{dropReasonLabel})

	m.riskScoring = newCounter(cfg, m.Registry,
		"risk_scoring",
		"Count of risk scoring calls labeled by status.",
		[]string{statusLabel})

	m.privacyCCPA = newCounter(cfg, m.Registry,
		"privacy_ccpa",
		"Count of total requests to the auction server where CCPA was provided by source and opt-out.",
		[]string{optOutLabel})

	m.privacyCOPPA = newCounterWithoutLabels(cfg, m.Registry,
		"privacy_coppa",
		"Count of total requests to the auction server where the COPPA flag was set.")

	m.privacyTCF = newCounter(cfg, m.Registry,
		"privacy_tcf",
		"Count of TCF versions for requests where GDPR was enforced.",
		[]string{versionLabel})

	m.privacyLMT = newCounterWithoutLabels(cfg, m.Registry,
		"privacy_lmt",
		"Count of total requests to the auction server where the LMT flag was set.")

	m.adapterRequests = newCounter(cfg, m.Registry,
		"adapter_requests",
		"Count of adapter calls labeled by adapter and outcome.",
		[]string{adapterLabel, outcomeLabel})

	m.adapterRequestsTimer = newHistogramVec(cfg, m.Registry,
		"adapter_request_time_seconds",
		"Seconds to resolve each adapter call.",
		[]string{adapterLabel},
		standardTimeBuckets)

	m.adapterPrices = newHistogramVec(cfg, m.Registry,
		"adapter_prices",
		"Monetary value of the bids received by adapter, in the auction currency.",
		[]string{adapterLabel},
		cpmBuckets)

	m.adapterPanics = newCounter(cfg, m.Registry,
		"adapter_panics",
		"Count of panics by adapter.",
		[]string{adapterLabel})

	return &m
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounterVec(opts, labels)
	registry.MustRegister(counter)
	return counter
}

func newCounterWithoutLabels(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string) prometheus.Counter {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounter(opts)
	registry.MustRegister(counter)
	return counter
}

func newHistogramVec(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogramVec(opts, labels)
	registry.MustRegister(histogram)
	return histogram
}

func (m *Metrics) RecordConnectionAccept(success bool) {
	if success {
		m.connectionsOpened.Inc()
	} else {
		m.connectionsError.With(prometheus.Labels{
			connectionErrorLabel: connectionAcceptError,
		}).Inc()
	}
}

func (m *Metrics) RecordConnectionClose(success bool) {
	if success {
		m.connectionsClosed.Inc()
	} else {
		m.connectionsError.With(prometheus.Labels{
			connectionErrorLabel: connectionCloseError,
		}).Inc()
	}
}

func (m *Metrics) RecordRequest(status metrics.RequestStatus) {
	m.requests.With(prometheus.Labels{
		requestStatusLabel: string(status),
	}).Inc()
}

func (m *Metrics) RecordRequestTime(status metrics.RequestStatus, length time.Duration) {
	if status == metrics.RequestStatusOK {
		m.requestsTimer.With(prometheus.Labels{
			requestStatusLabel: string(status),
		}).Observe(length.Seconds())
	}
}

func (m *Metrics) RecordAuction(labels metrics.AuctionLabels, length time.Duration) {
	mode := string(labels.Mode)
	if mode == "" {
		mode = "live"
	}
	m.auctions.With(prometheus.Labels{
		formatLabel: string(labels.Format),
		modeLabel:   mode,
		resultLabel: string(labels.Result),
	}).Inc()
	m.auctionTimer.With(prometheus.Labels{
		modeLabel: mode,
	}).Observe(length.Seconds())
}

func (m *Metrics) RecordAdapterRequest(labels metrics.AdapterLabels) {
	m.adapterRequests.With(prometheus.Labels{
		adapterLabel: labels.Adapter,
		outcomeLabel: string(labels.Outcome),
	}).Inc()
}

func (m *Metrics) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	if m.metricsDisabled.AdapterLatency {
		return
	}
	m.adapterRequestsTimer.With(prometheus.Labels{
		adapterLabel: labels.Adapter,
	}).Observe(length.Seconds())
}

func (m *Metrics) RecordAdapterPrice(adapter string, cpm float64) {
	m.adapterPrices.With(prometheus.Labels{
		adapterLabel: adapter,
	}).Observe(cpm)
}

func (m *Metrics) RecordAdapterPanic(adapter string) {
	m.adapterPanics.With(prometheus.Labels{
		adapterLabel: adapter,
	}).Inc()
}

func (m *Metrics) RecordIdempotency(hit bool) {
	result := idempotencyMiss
	if hit {
		result = idempotencyHit
	}
	m.idempotency.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()
}

func (m *Metrics) RecordOutcomeFlush(records int, success bool) {
	m.outcomesFlushed.With(prometheus.Labels{
		successLabel: strconv.FormatBool(success),
	}).Add(float64(records))
}

func (m *Metrics) RecordOutcomeDropped(reason metrics.OutcomeDropReason, count int) {
	m.outcomesDropped.With(prometheus.Labels{
		dropReasonLabel: string(reason),
	}).Add(float64(count))
}

func (m *Metrics) RecordRiskScoring(status metrics.RiskScoringStatus) {
	m.riskScoring.With(prometheus.Labels{
		statusLabel: string(status),
	}).Inc()
}

func (m *Metrics) RecordPrivacy(labels metrics.PrivacyLabels) {
	if labels.CCPAProvided {
		m.privacyCCPA.With(prometheus.Labels{
			optOutLabel: strconv.FormatBool(labels.CCPAEnforced),
		}).Inc()
	}
	if labels.COPPAEnforced {
		m.privacyCOPPA.Inc()
	}
	if labels.GDPREnforced {
		m.privacyTCF.With(prometheus.Labels{
			versionLabel: "v" + strconv.Itoa(int(labels.TCFVersion)),
		}).Inc()
	}
	if labels.LMTEnforced {
		m.privacyLMT.Inc()
	}
}
