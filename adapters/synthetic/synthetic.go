// Package synthetic provides an in-process bid source with configurable price, latency and fill
// rate. It is used for load testing and as a deterministic house line.
package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rivalapexmediation/auction-server/adapters"
	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/errortypes"
)

const defaultCreativeBase = "https://cdn.synthetic.example/creative"

type extraInfo struct {
	CPM       float64 `json:"cpm"`
	Currency  string  `json:"currency"`
	LatencyMs int64   `json:"latency_ms"`
	FillRate  float64 `json:"fill_rate"`
	TTL       int     `json:"ttl_seconds"`
}

type SyntheticAdapter struct {
	name         string
	info         extraInfo
	creativeBase string
}

func (a *SyntheticAdapter) RequestBid(ctx context.Context, request *auction.BidOpportunity) (*auction.Bid, error) {
	if a.info.LatencyMs > 0 {
		timer := time.NewTimer(time.Duration(a.info.LatencyMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, &errortypes.Timeout{Message: fmt.Sprintf("synthetic adapter %s: %v", a.name, ctx.Err())}
		}
	}

	if !a.fills(request) {
		return nil, &errortypes.NoBid{Reason: string(auction.NoBidNoFill)}
	}

	latency := a.info.LatencyMs
	return &auction.Bid{
		AdapterName: a.name,
		CPM:         a.info.CPM,
		Currency:    a.info.Currency,
		CreativeURL: a.creativeBase + "/" + url.PathEscape(request.PlacementID),
		TTLSeconds:  a.info.TTL,
		LatencyMs:   &latency,
	}, nil
}

// fills decides deterministically per request so replays of the same opportunity agree.
func (a *SyntheticAdapter) fills(request *auction.BidOpportunity) bool {
	if a.info.FillRate >= 1 {
		return true
	}
	if a.info.FillRate <= 0 {
		return false
	}
	h := fnv.New64a()
	h.Write([]byte(request.RequestID))
	h.Write([]byte{0})
	h.Write([]byte(request.PlacementID))
	return float64(h.Sum64()%10000)/10000 < a.info.FillRate
}

// Builder builds a new instance of the synthetic adapter. The endpoint, when set, is used as the
// creative base URL.
func Builder(name string, cfg config.Adapter, _ *http.Client) (adapters.Adapter, error) {
	info := extraInfo{FillRate: 1, Currency: "USD", TTL: 300}
	if cfg.ExtraInfo != "" {
		if err := json.Unmarshal([]byte(cfg.ExtraInfo), &info); err != nil {
			return nil, fmt.Errorf("invalid extra info: %v", err)
		}
	}
	if info.CPM <= 0 {
		return nil, fmt.Errorf("adapter %s: extra_info.cpm must be positive, got %v", name, info.CPM)
	}
	if info.LatencyMs < 0 {
		return nil, fmt.Errorf("adapter %s: extra_info.latency_ms must not be negative", name)
	}

	base := defaultCreativeBase
	if cfg.Endpoint != "" {
		base = strings.TrimRight(cfg.Endpoint, "/")
	}
	return &SyntheticAdapter{
		name:         name,
		info:         info,
		creativeBase: base,
	}, nil
}
