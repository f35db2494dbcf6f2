package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
)

// currencyRatesInfo holds currency rates information.
type currencyRatesInfo struct {
	Active   bool                          `json:"active"`
	Currency string                        `json:"currency"`
	Rates    map[string]map[string]float64 `json:"rates,omitempty"`
}

type rateTable interface {
	Table() map[string]map[string]float64
}

// NewCurrencyRatesEndpoint returns the conversion table bids are normalized with, and the
// currency they are normalized to.
func NewCurrencyRatesEndpoint(rates rateTable, target string) http.HandlerFunc {
	info := currencyRatesInfo{Currency: target}
	if rates != nil {
		info.Active = true
		if table := rates.Table(); len(table) > 0 {
			info.Rates = table
		}
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		jsonOutput, err := json.Marshal(info)
		if err != nil {
			glog.Errorf("/currency/rates Critical error when trying to marshal currencyRateInfo: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonOutput)
	}
}
