package config

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	influxdb "github.com/vrischmann/go-metrics-influxdb"

	mainConfig "github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
	prometheusmetrics "github.com/rivalapexmediation/auction-server/metrics/prometheus"
)

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine
// for this instance.
func NewMetricsEngine(cfg *mainConfig.Configuration, adapterList []string) *DetailedMetricsEngine {
	// Create a list of metrics engines to use.
	// Capacity of 2, as unlikely to have more than 2 metrics backends, and in the case
	// of 1 we won't use the list so it will be garbage collected.
	engineList := make(MultiMetricsEngine, 0, 2)
	returnEngine := DetailedMetricsEngine{}

	if cfg.Metrics.Influxdb.Host != "" {
		// Currently use go-metrics as the metrics piece for influx
		returnEngine.GoMetrics = metrics.NewMetrics(gometrics.NewPrefixedRegistry("auctionserver."), adapterList, cfg.Metrics.Disabled)
		engineList = append(engineList, returnEngine.GoMetrics)
		// Set up the Influx logger
		go influxdb.InfluxDB(
			returnEngine.GoMetrics.MetricsRegistry,                             // metrics registry
			time.Second*time.Duration(cfg.Metrics.Influxdb.MetricSendInterval), // Configurable interval
			cfg.Metrics.Influxdb.Host,                                          // the InfluxDB url
			cfg.Metrics.Influxdb.Database,                                      // your InfluxDB database
			cfg.Metrics.Influxdb.Measurement,                                   // your measurement
			cfg.Metrics.Influxdb.Username,                                      // your InfluxDB user
			cfg.Metrics.Influxdb.Password,                                      // your InfluxDB password
			false,                                                              // align timestamps
		)
		// Influx is not added to the engine list as goMetrics takes care of it already.
	}
	if cfg.Metrics.Prometheus.Port != 0 {
		// Set up the Prometheus metrics.
		returnEngine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus, cfg.Metrics.Disabled)
		engineList = append(engineList, returnEngine.PrometheusMetrics)
	}

	// Now return the proper metrics engine
	if len(engineList) > 1 {
		returnEngine.MetricsEngine = &engineList
	} else if len(engineList) == 1 {
		returnEngine.MetricsEngine = engineList[0]
	} else {
		returnEngine.MetricsEngine = &DummyMetricsEngine{}
	}

	return &returnEngine
}

// DetailedMetricsEngine is a MultiMetricsEngine that preserves links to underlying metrics engines.
type DetailedMetricsEngine struct {
	metrics.MetricsEngine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}

// MultiMetricsEngine logs metrics to multiple metrics databases The can be useful in transitioning
// an instance from one engine to another, you can run both in parallel to verify stats match up.
type MultiMetricsEngine []metrics.MetricsEngine

func (me *MultiMetricsEngine) RecordConnectionAccept(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionAccept(success)
	}
}

func (me *MultiMetricsEngine) RecordConnectionClose(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionClose(success)
	}
}

func (me *MultiMetricsEngine) RecordRequest(status metrics.RequestStatus) {
	for _, thisME := range *me {
		thisME.RecordRequest(status)
	}
}

func (me *MultiMetricsEngine) RecordRequestTime(status metrics.RequestStatus, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordRequestTime(status, length)
	}
}

func (me *MultiMetricsEngine) RecordAuction(labels metrics.AuctionLabels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordAuction(labels, length)
	}
}

func (me *MultiMetricsEngine) RecordAdapterRequest(labels metrics.AdapterLabels) {
	for _, thisME := range *me {
		thisME.RecordAdapterRequest(labels)
	}
}

func (me *MultiMetricsEngine) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordAdapterTime(labels, length)
	}
}

func (me *MultiMetricsEngine) RecordAdapterPrice(adapter string, cpm float64) {
	for _, thisME := range *me {
		thisME.RecordAdapterPrice(adapter, cpm)
	}
}

func (me *MultiMetricsEngine) RecordAdapterPanic(adapter string) {
	for _, thisME := range *me {
		thisME.RecordAdapterPanic(adapter)
	}
}

func (me *MultiMetricsEngine) RecordIdempotency(hit bool) {
	for _, thisME := range *me {
		thisME.RecordIdempotency(hit)
	}
}

func (me *MultiMetricsEngine) RecordOutcomeFlush(records int, success bool) {
	for _, thisME := range *me {
		thisME.RecordOutcomeFlush(records, success)
	}
}

func (me *MultiMetricsEngine) RecordOutcomeDropped(reason metrics.OutcomeDropReason, count int) {
	for _, thisME := range *me {
		thisME.RecordOutcomeDropped(reason, count)
	}
}

func (me *MultiMetricsEngine) RecordRiskScoring(status metrics.RiskScoringStatus) {
	for _, thisME := range *me {
		thisME.RecordRiskScoring(status)
	}
}

func (me *MultiMetricsEngine) RecordPrivacy(labels metrics.PrivacyLabels) {
	for _, thisME := range *me {
		thisME.RecordPrivacy(labels)
	}
}

// DummyMetricsEngine is a Noop metrics engine in case no metrics are configured. (may also be useful for tests)
type DummyMetricsEngine struct{}

func (me *DummyMetricsEngine) RecordConnectionAccept(success bool)                                  {}
func (me *DummyMetricsEngine) RecordConnectionClose(success bool)                                   {}
func (me *DummyMetricsEngine) RecordRequest(status metrics.RequestStatus)                           {}
func (me *DummyMetricsEngine) RecordRequestTime(status metrics.RequestStatus, length time.Duration) {}
func (me *DummyMetricsEngine) RecordAuction(labels metrics.AuctionLabels, length time.Duration)     {}
func (me *DummyMetricsEngine) RecordAdapterRequest(labels metrics.AdapterLabels)                    {}
func (me *DummyMetricsEngine) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {}
func (me *DummyMetricsEngine) RecordAdapterPrice(adapter string, cpm float64)                       {}
func (me *DummyMetricsEngine) RecordAdapterPanic(adapter string)                                    {}
func (me *DummyMetricsEngine) RecordIdempotency(hit bool)                                           {}
func (me *DummyMetricsEngine) RecordOutcomeFlush(records int, success bool)                         {}
func (me *DummyMetricsEngine) RecordOutcomeDropped(reason metrics.OutcomeDropReason, count int)     {}
func (me *DummyMetricsEngine) RecordRiskScoring(status metrics.RiskScoringStatus)                   {}
func (me *DummyMetricsEngine) RecordPrivacy(labels metrics.PrivacyLabels)                           {}
