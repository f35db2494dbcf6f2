package config

import (
	"errors"
	"time"
)

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
	Disabled   DisabledMetrics   `mapstructure:"disabled_metrics"`
}

type DisabledMetrics struct {
	// True if we want to stop collecting per adapter latency metrics.
	AdapterLatency bool `mapstructure:"adapter_latency"`
}

type InfluxMetrics struct {
	Host               string `mapstructure:"host"`
	Database           string `mapstructure:"database"`
	Measurement        string `mapstructure:"measurement"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	MetricSendInterval int    `mapstructure:"metric_send_interval"`
}

type PrometheusMetrics struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

func (m *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

func (m Metrics) validate(errs []error) []error {
	if m.Influxdb.Host != "" && m.Influxdb.MetricSendInterval <= 0 {
		errs = append(errs, errors.New("metrics.influxdb.metric_send_interval must be positive when an influx host is configured"))
	}
	if m.Prometheus.Port > 0 && m.Prometheus.TimeoutMs <= 0 {
		errs = append(errs, errors.New("metrics.prometheus.timeout_ms must be positive when prometheus is enabled"))
	}
	return errs
}
