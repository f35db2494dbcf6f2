package s2sjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"
	"github.com/rivalapexmediation/auction-server/adapters"
	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/errortypes"
)

// S2SJSONAdapter speaks a compact JSON protocol:
//
//	request:  {"request_id", "placement_id", "ad_format", "floor_cpm", "timeout_ms", "consent", "device", "app", "user"}
//	response: {"bid": {"cpm", "currency", "creative_url", "ttl_seconds", "latency_ms", "meta"}}
//	      or: {"nobid": {"reason"}}
type S2SJSONAdapter struct {
	endpoint  string
	timeoutMs int
}

type s2sRequest struct {
	RequestID   string           `json:"request_id"`
	PlacementID string           `json:"placement_id"`
	AdFormat    auction.AdFormat `json:"ad_format"`
	FloorCPM    float64          `json:"floor_cpm"`
	TimeoutMs   int              `json:"timeout_ms"`
	Consent     *auction.Consent `json:"consent,omitempty"`
	Device      json.RawMessage  `json:"device,omitempty"`
	App         json.RawMessage  `json:"app,omitempty"`
	User        json.RawMessage  `json:"user,omitempty"`
}

func (a *S2SJSONAdapter) MakeRequest(request *auction.BidOpportunity) (*adapters.RequestData, error) {
	body, err := json.Marshal(s2sRequest{
		RequestID:   request.RequestID,
		PlacementID: request.PlacementID,
		AdFormat:    request.AdFormat,
		FloorCPM:    request.Floor(),
		TimeoutMs:   a.timeoutMs,
		Consent:     request.Consent,
		Device:      request.Device,
		App:         request.App,
		User:        request.User,
	})
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")

	return &adapters.RequestData{
		Method:  http.MethodPost,
		Uri:     a.endpoint,
		Body:    body,
		Headers: headers,
	}, nil
}

func (a *S2SJSONAdapter) MakeBid(request *auction.BidOpportunity, response *adapters.ResponseData) (*auction.Bid, error) {
	if err := adapters.CheckResponseStatus(response); err != nil {
		return nil, err
	}

	if reason, err := jsonparser.GetString(response.Body, "nobid", "reason"); err == nil {
		if reason == "" {
			reason = string(auction.NoBidNoFill)
		}
		return nil, &errortypes.NoBid{Reason: reason}
	}

	bidData, dataType, _, err := jsonparser.Get(response.Body, "bid")
	if err == jsonparser.KeyPathNotFoundError || dataType == jsonparser.Null {
		return nil, &errortypes.NoBid{Reason: string(auction.NoBidNoFill)}
	} else if err != nil {
		return nil, &errortypes.BadServerResponse{Message: fmt.Sprintf("Bad server response: %v", err)}
	}

	cpm, err := jsonparser.GetFloat(bidData, "cpm")
	if err != nil {
		return nil, &errortypes.BadServerResponse{Message: "bid.cpm is missing or not a number"}
	}
	currency, _ := jsonparser.GetString(bidData, "currency")
	creativeURL, _ := jsonparser.GetString(bidData, "creative_url")
	ttl, err := jsonparser.GetInt(bidData, "ttl_seconds")
	if err != nil || ttl <= 0 {
		ttl = 300
	}

	bid := &auction.Bid{
		CPM:         cpm,
		Currency:    currency,
		CreativeURL: creativeURL,
		TTLSeconds:  int(ttl),
	}
	if latency, err := jsonparser.GetInt(bidData, "latency_ms"); err == nil {
		bid.LatencyMs = &latency
	}
	if meta, dataType, _, err := jsonparser.Get(bidData, "meta"); err == nil && dataType == jsonparser.Object {
		bid.Metadata = append(json.RawMessage(nil), meta...)
	}
	return bid, nil
}

// Builder builds a new instance of the s2sjson adapter for the given name with the given config.
func Builder(name string, cfg config.Adapter, client *http.Client) (adapters.Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s2sjson adapter requires an endpoint")
	}
	bidder := &S2SJSONAdapter{
		endpoint:  cfg.Endpoint,
		timeoutMs: cfg.TimeoutMs,
	}
	return adapters.AdaptHttpBidder(bidder, client, name), nil
}
