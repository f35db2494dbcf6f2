package router

import (
	"net/http"
	"net/http/pprof"

	"github.com/rivalapexmediation/auction-server/currency"
	"github.com/rivalapexmediation/auction-server/endpoints"
)

func Admin(version, revision string, rates *currency.Rates, targetCurrency string) *http.ServeMux {
	// Add endpoints to the admin server
	// Making sure to add pprof routes
	mux := http.NewServeMux()
	// Register pprof handlers
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	// Register auction server defined admin handlers. A nil *Rates must reach the endpoint as a nil interface.
	if rates != nil {
		mux.HandleFunc("/currency/rates", endpoints.NewCurrencyRatesEndpoint(rates, targetCurrency))
	} else {
		mux.HandleFunc("/currency/rates", endpoints.NewCurrencyRatesEndpoint(nil, targetCurrency))
	}
	mux.HandleFunc("/version", endpoints.NewVersionEndpoint(version, revision))
	return mux
}
