package router

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/rivalapexmediation/auction-server/breaker"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/currency"
	"github.com/rivalapexmediation/auction-server/endpoints"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/rivalapexmediation/auction-server/exchange"
	"github.com/rivalapexmediation/auction-server/experiment/outcomes"
	"github.com/rivalapexmediation/auction-server/fraud"
	"github.com/rivalapexmediation/auction-server/idempotency"
	metricsConf "github.com/rivalapexmediation/auction-server/metrics/config"
	"github.com/rivalapexmediation/auction-server/router/aspects"
	"github.com/rivalapexmediation/auction-server/server/ssl"
	"github.com/rivalapexmediation/auction-server/statestore"
	"github.com/rivalapexmediation/auction-server/tokens"
)

type Router struct {
	*httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	Rates         *currency.Rates
	Shutdown      func()
}

func getTransport(cfg *config.Configuration, certPool *x509.CertPool) *http.Transport {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxConnsPerHost: cfg.Client.MaxConnsPerHost,
		IdleConnTimeout: time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
		TLSClientConfig: &tls.Config{RootCAs: certPool},
	}

	if cfg.Client.DialTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   time.Duration(cfg.Client.DialTimeout) * time.Millisecond,
			KeepAlive: time.Duration(cfg.Client.DialKeepAlive) * time.Second,
		}).DialContext
	}

	if cfg.Client.TLSHandshakeTimeout > 0 {
		transport.TLSHandshakeTimeout = time.Duration(cfg.Client.TLSHandshakeTimeout) * time.Second
	}

	if cfg.Client.ResponseHeaderTimeout > 0 {
		transport.ResponseHeaderTimeout = time.Duration(cfg.Client.ResponseHeaderTimeout) * time.Second
	}

	if cfg.Client.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Client.MaxIdleConns
	}

	if cfg.Client.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Client.MaxIdleConnsPerHost
	}

	return transport
}

// New builds every auction dependency from cfg and registers the public routes.
func New(cfg *config.Configuration) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	// Adapters need both the system certificates and any configured in the local file system.
	certPool := ssl.GetRootCAPool()
	certPool, readCertErr := ssl.AppendPEMFileToRootCAPool(certPool, cfg.PemCertsFile)
	if readCertErr != nil {
		glog.Infof("Could not read certificates file: %s \n", readCertErr.Error())
	}
	generalHttpClient := &http.Client{
		Transport: getTransport(cfg, certPool),
	}

	registry, adaptersErrs := exchange.BuildAdapters(generalHttpClient, cfg.Adapters)
	if len(adaptersErrs) > 0 {
		return nil, errortypes.NewAggregateErrors("Failed to initialize adapters", adaptersErrs)
	}

	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, registry.Names())

	store, err := statestore.New(cfg.StateStore)
	if err != nil {
		return nil, fmt.Errorf("state store: %v", err)
	}
	circuitBreaker := breaker.New(cfg.CircuitBreaker, store, clock.New())
	cache := idempotency.New(cfg.Idempotency, store)

	signer, err := tokens.NewJWTSigner(cfg.Tokens.SigningKey, cfg.Tokens.Issuer, clock.New())
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("token signer: %v", err)
	}
	issuer := tokens.NewIssuer(signer, cfg.Tokens)

	var scorer fraud.Scorer = fraud.NoopScorer{}
	var riskScorer *fraud.RiskScorer
	if cfg.RiskScoring.Enabled {
		riskScorer = fraud.NewRiskScorer(cfg.RiskScoring, generalHttpClient, r.MetricsEngine)
		scorer = riskScorer
	}

	recorder, err := outcomes.New(context.Background(), cfg.Outcomes, r.MetricsEngine)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("experiment outcomes: %v", err)
	}
	// A nil *Recorder must not end up in a non-nil interface.
	var outcomeRecorder exchange.OutcomeRecorder
	if recorder != nil {
		outcomeRecorder = recorder
	}

	r.Rates = currency.NewRates(cfg.Currency.Rates)

	theExchange := exchange.NewExchange(registry, circuitBreaker, issuer, scorer, outcomeRecorder, r.Rates, cfg.Auction, r.MetricsEngine)

	auctionEndpoint, err := endpoints.NewAuctionEndpoint(theExchange, cache, r.MetricsEngine)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("auction endpoint: %v", err)
	}

	requestTimeoutHeaders := config.RequestTimeoutHeaders{}
	if cfg.RequestTimeoutHeaders != requestTimeoutHeaders {
		auctionEndpoint = aspects.QueuedRequestTimeout(auctionEndpoint, cfg.RequestTimeoutHeaders)
	}

	r.POST("/v1/auction", auctionEndpoint)
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))

	r.Shutdown = func() {
		if recorder != nil {
			recorder.Close()
		}
		if riskScorer != nil {
			riskScorer.Shutdown()
		}
		closeStore(store)
	}

	glog.Infof("Auction router ready with %d adapters", registry.Len())
	return r, nil
}

func closeStore(store statestore.Store) {
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			glog.Warningf("state store did not close cleanly: %v", err)
		}
	}
}

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// SupportCORS lets browser based SDKs call the auction endpoint from any origin.
func SupportCORS(handler http.Handler, cfg config.CORS) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: cfg.AllowCredentials,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
