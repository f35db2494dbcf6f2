package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antonmedv/expr"
	"github.com/asaskevich/govalidator"
	units "github.com/docker/go-units"
	"github.com/spf13/viper"

	"github.com/rivalapexmediation/auction-server/errortypes"
)

// Configuration specifies the static application config.
type Configuration struct {
	ExternalURL    string             `mapstructure:"external_url"`
	Host           string             `mapstructure:"host"`
	Port           int                `mapstructure:"port"`
	AdminPort      int                `mapstructure:"admin_port"`
	EnableGzip     bool               `mapstructure:"enable_gzip"`
	StatusResponse string             `mapstructure:"status_response"`
	Auction        Auction            `mapstructure:"auction"`
	Adapters       map[string]Adapter `mapstructure:"adapters"`
	CircuitBreaker CircuitBreaker     `mapstructure:"circuit_breaker"`
	Idempotency    Idempotency        `mapstructure:"idempotency"`
	StateStore     StateStore         `mapstructure:"state_store"`
	Tokens         Tokens             `mapstructure:"tokens"`
	Outcomes       Outcomes           `mapstructure:"outcomes"`
	RiskScoring    RiskScoring        `mapstructure:"risk_scoring"`
	Currency       Currency           `mapstructure:"currency"`
	Metrics        Metrics            `mapstructure:"metrics"`
	CORS           CORS               `mapstructure:"cors"`
	Sentry         Sentry             `mapstructure:"sentry"`

	Client                HTTPClient            `mapstructure:"http_client"`
	PemCertsFile          string                `mapstructure:"certificates_file"`
	RequestTimeoutHeaders RequestTimeoutHeaders `mapstructure:"request_timeout_headers"`

	DeployPIDEnabled bool   `mapstructure:"deploy_pid_enabled"`
	DeployPIDPath    string `mapstructure:"deploy_pid_path"`
	DeployPIDMode    uint32 `mapstructure:"deploy_pid_mode"`
}

// HTTPClient tunes the transport shared by the adapters and the risk scoring client.
type HTTPClient struct {
	MaxConnsPerHost       int `mapstructure:"max_connections_per_host"`
	MaxIdleConns          int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost   int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout       int `mapstructure:"idle_connection_timeout_seconds"`
	DialTimeout           int `mapstructure:"dial_timeout_ms"`
	DialKeepAlive         int `mapstructure:"dial_keepalive_seconds"`
	TLSHandshakeTimeout   int `mapstructure:"tls_handshake_timeout_seconds"`
	ResponseHeaderTimeout int `mapstructure:"response_header_timeout_seconds"`
}

// RequestTimeoutHeaders name the headers a fronting queue uses to report how long a request
// waited and how long it may wait.
type RequestTimeoutHeaders struct {
	RequestTimeInQueue    string `mapstructure:"request_time_in_queue"`
	RequestTimeoutInQueue string `mapstructure:"request_timeout_in_queue"`
}

type Auction struct {
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Currency  string `mapstructure:"currency"`
}

func (a Auction) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func (a Auction) validate(errs []error) []error {
	if a.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("auction.timeout_ms must be positive. Got %d", a.TimeoutMs))
	}
	if len(a.Currency) != 3 {
		errs = append(errs, fmt.Errorf("auction.currency must be an ISO-4217 code. Got %q", a.Currency))
	}
	return errs
}

type CircuitBreaker struct {
	Enabled          bool `mapstructure:"enabled"`
	FailureThreshold int  `mapstructure:"failure_threshold"`
	CooldownMs       int  `mapstructure:"cooldown_ms"`
}

func (cb CircuitBreaker) Cooldown() time.Duration {
	return time.Duration(cb.CooldownMs) * time.Millisecond
}

func (cb CircuitBreaker) validate(errs []error) []error {
	if !cb.Enabled {
		return errs
	}
	if cb.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("circuit_breaker.failure_threshold must be at least 1. Got %d", cb.FailureThreshold))
	}
	if cb.CooldownMs <= 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.cooldown_ms must be positive. Got %d", cb.CooldownMs))
	}
	return errs
}

type Idempotency struct {
	Enabled    bool `mapstructure:"enabled"`
	TTLSeconds int  `mapstructure:"ttl_seconds"`
	// LocalCacheSize sizes the in-process near cache, e.g. "16MB". Zero disables it.
	LocalCacheSize string `mapstructure:"local_cache_size"`
}

func (i Idempotency) TTL() time.Duration {
	return time.Duration(i.TTLSeconds) * time.Second
}

// LocalCacheBytes parses LocalCacheSize. Invalid sizes are rejected by validation.
func (i Idempotency) LocalCacheBytes() int {
	size, err := units.RAMInBytes(i.LocalCacheSize)
	if err != nil || size < 0 {
		return 0
	}
	return int(size)
}

func (i Idempotency) validate(errs []error) []error {
	if i.Enabled && i.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("idempotency.ttl_seconds must be positive. Got %d", i.TTLSeconds))
	}
	if size, err := units.RAMInBytes(i.LocalCacheSize); err != nil || size < 0 {
		errs = append(errs, fmt.Errorf("idempotency.local_cache_size %q is not a valid size", i.LocalCacheSize))
	}
	return errs
}

const (
	StateStoreMemory = "memory"
	StateStoreRedis     = "redis"
	StateStoreAerospike = "aerospike"
)

type StateStore struct {
	Type      string    `mapstructure:"type"`
	Redis     Redis     `mapstructure:"redis"`
	Aerospike Aerospike `mapstructure:"aerospike"`
}

// Aerospike configures the Aerospike state store. Every key lives in a single set of Namespace.
type Aerospike struct {
	Hosts     []string `mapstructure:"hosts"`
	Port      int      `mapstructure:"port"`
	Namespace string   `mapstructure:"namespace"`
	Set       string   `mapstructure:"set"`
	TimeoutMs int      `mapstructure:"timeout_ms"`
}

func (a Aerospike) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

type Redis struct {
	Addr      string `mapstructure:"addr"`
	DB        int    `mapstructure:"db"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	PoolSize  int    `mapstructure:"pool_size"`
	MinIdle   int    `mapstructure:"min_idle_conns"`
	TLS       bool   `mapstructure:"tls"`
}

func (r Redis) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (s StateStore) validate(errs []error) []error {
	switch s.Type {
	case StateStoreMemory:
	case StateStoreRedis:
		if s.Redis.Addr == "" {
			errs = append(errs, errors.New("state_store.redis.addr is required when state_store.type is redis"))
		}
		if s.Redis.TimeoutMs <= 0 {
			errs = append(errs, fmt.Errorf("state_store.redis.timeout_ms must be positive. Got %d", s.Redis.TimeoutMs))
		}
	case StateStoreAerospike:
		if len(s.Aerospike.Hosts) == 0 {
			errs = append(errs, errors.New("state_store.aerospike.hosts is required when state_store.type is aerospike"))
		}
		if s.Aerospike.Namespace == "" {
			errs = append(errs, errors.New("state_store.aerospike.namespace is required when state_store.type is aerospike"))
		}
		if s.Aerospike.Port <= 0 {
			errs = append(errs, fmt.Errorf("state_store.aerospike.port must be positive. Got %d", s.Aerospike.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("state_store.type must be one of [%s %s %s]. Got %q", StateStoreMemory, StateStoreRedis, StateStoreAerospike, s.Type))
	}
	return errs
}

type Tokens struct {
	SigningKey           string `mapstructure:"signing_key"`
	Issuer               string `mapstructure:"issuer"`
	ImpressionTTLSeconds int    `mapstructure:"impression_ttl_seconds"`
	ClickTTLSeconds      int    `mapstructure:"click_ttl_seconds"`
	DeliveryTTLSeconds   int    `mapstructure:"delivery_ttl_seconds"`
	TrackingBaseURL      string `mapstructure:"tracking_base_url"`
	DeliveryBaseURL      string `mapstructure:"delivery_base_url"`
}

func (t Tokens) validate(errs []error) []error {
	if t.SigningKey == "" {
		errs = append(errs, errors.New("tokens.signing_key is required"))
	}
	for name, ttl := range map[string]int{
		"impression_ttl_seconds": t.ImpressionTTLSeconds,
		"click_ttl_seconds":      t.ClickTTLSeconds,
		"delivery_ttl_seconds":   t.DeliveryTTLSeconds,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("tokens.%s must be positive. Got %d", name, ttl))
		}
	}
	if !govalidator.IsURL(t.TrackingBaseURL) {
		errs = append(errs, fmt.Errorf("tokens.tracking_base_url %q is not a valid URL", t.TrackingBaseURL))
	}
	if !govalidator.IsURL(t.DeliveryBaseURL) {
		errs = append(errs, fmt.Errorf("tokens.delivery_base_url %q is not a valid URL", t.DeliveryBaseURL))
	}
	return errs
}

const (
	OutcomeStoreNone     = "none"
	OutcomeStorePostgres = "postgres"
	OutcomeStoreMySQL    = "mysql"
	OutcomeStoreSQLite   = "sqlite"
	OutcomeStoreKafka    = "kafka"
)

type Outcomes struct {
	Enabled         bool   `mapstructure:"enabled"`
	MaxQueueSize    int    `mapstructure:"max_queue_size"`
	MaxBatchSize    int    `mapstructure:"max_batch_size"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
	MaxPayloadSize  string `mapstructure:"max_payload_size"`
	// Filter is an optional boolean expression over the outcome record. Records for which it is
	// false are not queued.
	Filter string       `mapstructure:"filter"`
	Store  OutcomeStore `mapstructure:"store"`
}

type OutcomeStore struct {
	Type    string   `mapstructure:"type"`
	DSN     string   `mapstructure:"dsn"`
	Table   string   `mapstructure:"table"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (o Outcomes) FlushInterval() time.Duration {
	return time.Duration(o.FlushIntervalMs) * time.Millisecond
}

// MaxPayloadBytes parses MaxPayloadSize. Invalid sizes are rejected by validation.
func (o Outcomes) MaxPayloadBytes() int {
	size, err := units.FromHumanSize(o.MaxPayloadSize)
	if err != nil {
		return 0
	}
	return int(size)
}

func (o Outcomes) validate(errs []error) []error {
	if !o.Enabled {
		return errs
	}
	if o.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("outcomes.max_queue_size must be positive. Got %d", o.MaxQueueSize))
	}
	if o.MaxBatchSize <= 0 || o.MaxBatchSize > o.MaxQueueSize {
		errs = append(errs, fmt.Errorf("outcomes.max_batch_size must be within [1, max_queue_size]. Got %d", o.MaxBatchSize))
	}
	if o.FlushIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("outcomes.flush_interval_ms must be positive. Got %d", o.FlushIntervalMs))
	}
	if o.MaxPayloadBytes() <= 0 {
		errs = append(errs, fmt.Errorf("outcomes.max_payload_size must be a positive size. Got %q", o.MaxPayloadSize))
	}
	if o.Filter != "" {
		if _, err := expr.Compile(o.Filter, expr.AsBool()); err != nil {
			errs = append(errs, fmt.Errorf("outcomes.filter is not a valid expression: %v", err))
		}
	}
	switch o.Store.Type {
	case OutcomeStoreNone:
	case OutcomeStorePostgres, OutcomeStoreMySQL, OutcomeStoreSQLite:
		if o.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("outcomes.store.dsn is required for store type %s", o.Store.Type))
		}
		if !govalidator.IsAlphanumeric(strings.ReplaceAll(o.Store.Table, "_", "")) {
			errs = append(errs, fmt.Errorf("outcomes.store.table %q is not a valid table name", o.Store.Table))
		}
	case OutcomeStoreKafka:
		if len(o.Store.Brokers) == 0 || o.Store.Topic == "" {
			errs = append(errs, errors.New("outcomes.store.brokers and outcomes.store.topic are required for store type kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("outcomes.store.type must be one of [%s %s %s %s %s]. Got %q",
			OutcomeStoreNone, OutcomeStorePostgres, OutcomeStoreMySQL, OutcomeStoreSQLite, OutcomeStoreKafka, o.Store.Type))
	}
	return errs
}

type RiskScoring struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

func (r RiskScoring) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (r RiskScoring) validate(errs []error) []error {
	if !r.Enabled {
		return errs
	}
	if !govalidator.IsURL(r.Endpoint) {
		errs = append(errs, fmt.Errorf("risk_scoring.endpoint %q is not a valid URL", r.Endpoint))
	}
	if r.Workers <= 0 || r.QueueSize <= 0 || r.TimeoutMs <= 0 {
		errs = append(errs, errors.New("risk_scoring.workers, risk_scoring.queue_size and risk_scoring.timeout_ms must be positive"))
	}
	return errs
}

// Currency holds the static conversion table used to normalize bid prices.
type Currency struct {
	Rates map[string]map[string]float64 `mapstructure:"rates"`
}

type CORS struct {
	AllowCredentials bool `mapstructure:"allow_credentials"`
}

// Sentry reports recovered panics when a DSN is configured.
type Sentry struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	c.Auction.Currency = strings.ToUpper(c.Auction.Currency)
	c.Adapters = normalizeAdapters(c.Adapters)

	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateErrors("validation errors", errs)
	}
	return &c, nil
}

func (c *Configuration) validate() []error {
	var errs []error
	errs = c.Auction.validate(errs)
	errs = validateAdapters(c.Adapters, errs)
	errs = c.CircuitBreaker.validate(errs)
	errs = c.Idempotency.validate(errs)
	errs = c.StateStore.validate(errs)
	errs = c.Tokens.validate(errs)
	errs = c.Outcomes.validate(errs)
	errs = c.RiskScoring.validate(errs)
	errs = c.Metrics.validate(errs)
	return errs
}

// SetupViper registers the defaults and the environment binding for every config key.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")

	v.SetDefault("auction.timeout_ms", 250)
	v.SetDefault("auction.currency", "USD")

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.failure_threshold", 3)
	v.SetDefault("circuit_breaker.cooldown_ms", 30000)

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.ttl_seconds", 30)
	v.SetDefault("idempotency.local_cache_size", "0")

	v.SetDefault("state_store.type", StateStoreMemory)
	v.SetDefault("state_store.redis.addr", "localhost:6379")
	v.SetDefault("state_store.redis.db", 0)
	v.SetDefault("state_store.redis.username", "")
	v.SetDefault("state_store.redis.password", "")
	v.SetDefault("state_store.redis.timeout_ms", 20)
	v.SetDefault("state_store.redis.pool_size", 32)
	v.SetDefault("state_store.redis.min_idle_conns", 4)
	v.SetDefault("state_store.redis.tls", false)
	v.SetDefault("state_store.aerospike.hosts", []string{"localhost"})
	v.SetDefault("state_store.aerospike.port", 3000)
	v.SetDefault("state_store.aerospike.namespace", "test")
	v.SetDefault("state_store.aerospike.set", "auction")
	v.SetDefault("state_store.aerospike.timeout_ms", 50)

	v.SetDefault("tokens.signing_key", "")
	v.SetDefault("tokens.issuer", "auction-server")
	v.SetDefault("tokens.impression_ttl_seconds", 3600)
	v.SetDefault("tokens.click_ttl_seconds", 3600)
	v.SetDefault("tokens.delivery_ttl_seconds", 300)
	v.SetDefault("tokens.tracking_base_url", "http://localhost:8000/t")
	v.SetDefault("tokens.delivery_base_url", "http://localhost:8000/d")

	v.SetDefault("outcomes.enabled", false)
	v.SetDefault("outcomes.max_queue_size", 5000)
	v.SetDefault("outcomes.max_batch_size", 500)
	v.SetDefault("outcomes.flush_interval_ms", 1000)
	v.SetDefault("outcomes.max_payload_size", "8KB")
	v.SetDefault("outcomes.filter", "")
	v.SetDefault("outcomes.store.type", OutcomeStoreNone)
	v.SetDefault("outcomes.store.dsn", "")
	v.SetDefault("outcomes.store.table", "experiment_outcomes")
	v.SetDefault("outcomes.store.brokers", []string{})
	v.SetDefault("outcomes.store.topic", "experiment-outcomes")

	v.SetDefault("risk_scoring.enabled", false)
	v.SetDefault("risk_scoring.endpoint", "")
	v.SetDefault("risk_scoring.timeout_ms", 200)
	v.SetDefault("risk_scoring.workers", 8)
	v.SetDefault("risk_scoring.queue_size", 1000)

	v.SetDefault("currency.rates", map[string]map[string]float64{})

	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.measurement", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)
	v.SetDefault("metrics.disabled_metrics.adapter_latency", false)

	v.SetDefault("cors.allow_credentials", true)

	v.SetDefault("http_client.max_connections_per_host", 0) // unlimited
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 50)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("http_client.dial_timeout_ms", 0)
	v.SetDefault("http_client.dial_keepalive_seconds", 0)
	v.SetDefault("http_client.tls_handshake_timeout_seconds", 0)
	v.SetDefault("http_client.response_header_timeout_seconds", 0)
	v.SetDefault("certificates_file", "")
	v.SetDefault("deploy_pid_enabled", false)
	v.SetDefault("deploy_pid_path", "/var/run/auction-server")
	v.SetDefault("deploy_pid_mode", 0644)
	v.SetDefault("request_timeout_headers.request_time_in_queue", "")
	v.SetDefault("request_timeout_headers.request_timeout_in_queue", "")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)

	setAdapterDefaults(v)

	v.SetEnvPrefix("AUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if filename != "" {
		v.ReadInConfig()
	}
}
