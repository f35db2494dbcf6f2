package config

import (
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"

	mainConfig "github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
	prometheusmetrics "github.com/rivalapexmediation/auction-server/metrics/prometheus"
)

// Start a simple test to insure we get valid MetricsEngines for various configurations
func TestDummyMetricsEngine(t *testing.T) {
	cfg := mainConfig.Configuration{}
	testEngine := NewMetricsEngine(&cfg, []string{"openrtb"})
	_, ok := testEngine.MetricsEngine.(*DummyMetricsEngine)
	assert.True(t, ok, "Expected a DummyMetricsEngine")
}

func TestGoMetricsEngine(t *testing.T) {
	cfg := mainConfig.Configuration{}
	cfg.Metrics.Influxdb.Host = "localhost"
	cfg.Metrics.Influxdb.MetricSendInterval = 3600
	testEngine := NewMetricsEngine(&cfg, []string{"openrtb"})
	_, ok := testEngine.MetricsEngine.(*metrics.Metrics)
	assert.True(t, ok, "Expected a go-metrics Metrics as MetricsEngine")
}

func TestPrometheusAndGoMetrics(t *testing.T) {
	cfg := mainConfig.Configuration{}
	cfg.Metrics.Influxdb.Host = "localhost"
	cfg.Metrics.Influxdb.MetricSendInterval = 3600
	cfg.Metrics.Prometheus.Port = 9090
	testEngine := NewMetricsEngine(&cfg, []string{"openrtb"})
	_, ok := testEngine.MetricsEngine.(*MultiMetricsEngine)
	assert.True(t, ok, "Expected a MultiMetricsEngine")
	assert.NotNil(t, testEngine.GoMetrics)
	assert.NotNil(t, testEngine.PrometheusMetrics)
}

// Test the multiengine
func TestMultiMetricsEngine(t *testing.T) {
	goEngine := metrics.NewMetrics(gometrics.NewPrefixedRegistry("auctionserver."), []string{"openrtb", "synthetic"}, mainConfig.DisabledMetrics{})
	promEngine := prometheusmetrics.NewMetrics(mainConfig.PrometheusMetrics{}, mainConfig.DisabledMetrics{})
	engineList := MultiMetricsEngine{goEngine, promEngine, &DummyMetricsEngine{}}
	var metricsEngine metrics.MetricsEngine = &engineList

	for i := 0; i < 5; i++ {
		metricsEngine.RecordRequest(metrics.RequestStatusOK)
		metricsEngine.RecordRequestTime(metrics.RequestStatusOK, 20*time.Millisecond)
		metricsEngine.RecordAdapterRequest(metrics.AdapterLabels{Adapter: "openrtb", Outcome: metrics.AdapterOutcomeBid})
		metricsEngine.RecordAdapterRequest(metrics.AdapterLabels{Adapter: "synthetic", Outcome: metrics.AdapterOutcomeNoBid})
		metricsEngine.RecordAdapterPrice("openrtb", 1.25)
		metricsEngine.RecordAuction(metrics.AuctionLabels{Result: metrics.AuctionWin}, 30*time.Millisecond)
		metricsEngine.RecordIdempotency(i%2 == 0)
	}
	metricsEngine.RecordConnectionAccept(true)
	metricsEngine.RecordAdapterPanic("openrtb")
	metricsEngine.RecordOutcomeFlush(3, true)
	metricsEngine.RecordOutcomeDropped(metrics.OutcomeDropQueueFull, 1)
	metricsEngine.RecordRiskScoring(metrics.RiskScoringOK)
	metricsEngine.RecordPrivacy(metrics.PrivacyLabels{COPPAEnforced: true})
	metricsEngine.RecordAdapterTime(metrics.AdapterLabels{Adapter: "openrtb"}, time.Millisecond)
	metricsEngine.RecordConnectionClose(true)

	VerifyMetrics(t, "RequestStatuses.OK", goEngine.RequestStatuses[metrics.RequestStatusOK].Count(), 5)
	VerifyMetrics(t, "adapter.openrtb.bid", goEngine.AdapterMetrics["openrtb"].OutcomeMeters[metrics.AdapterOutcomeBid].Count(), 5)
	VerifyMetrics(t, "adapter.synthetic.no_bid", goEngine.AdapterMetrics["synthetic"].OutcomeMeters[metrics.AdapterOutcomeNoBid].Count(), 5)
	VerifyMetrics(t, "adapter.openrtb.panics", goEngine.AdapterMetrics["openrtb"].PanicMeter.Count(), 1)
	VerifyMetrics(t, "idempotency.hits", goEngine.IdempotencyHitMeter.Count(), 3)
	VerifyMetrics(t, "idempotency.misses", goEngine.IdempotencyMissMeter.Count(), 2)
	VerifyMetrics(t, "outcomes.flushed", goEngine.OutcomesFlushedMeter.Count(), 3)
	VerifyMetrics(t, "active_connections", goEngine.ConnectionCounter.Count(), 0)
}

func VerifyMetrics(t *testing.T, name string, actual int64, expected int64) {
	if expected != actual {
		t.Errorf("Error in metric %s: got %d, expected %d.", name, actual, expected)
	}
}
