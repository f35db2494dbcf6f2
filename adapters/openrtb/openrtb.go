package openrtb

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/rivalapexmediation/auction-server/adapters"
	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/rivalapexmediation/auction-server/privacy"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const defaultCreativeTTL = 300

// OpenRTBAdapter talks OpenRTB 2.6 to a single demand endpoint.
type OpenRTBAdapter struct {
	endpoint      string
	tmax          int64
	floorCurrency string
	template      []byte
}

type bidMetadata struct {
	AdM     string          `json:"adm,omitempty"`
	ADomain []string        `json:"adomain,omitempty"`
	CrID    string          `json:"crid,omitempty"`
	Seat    string          `json:"seat,omitempty"`
	Ext     json.RawMessage `json:"ext,omitempty"`
}

// MakeRequest builds the OpenRTB bid request for the opportunity.
func (a *OpenRTBAdapter) MakeRequest(request *auction.BidOpportunity) (*adapters.RequestData, error) {
	imp := openrtb2.Imp{
		ID:          "1",
		TagID:       request.PlacementID,
		BidFloor:    request.Floor(),
		BidFloorCur: a.floorCurrency,
	}
	switch request.AdFormat {
	case auction.FormatBanner:
		imp.Banner = &openrtb2.Banner{Format: []openrtb2.Format{{W: 320, H: 50}}}
	case auction.FormatInterstitial:
		imp.Banner = &openrtb2.Banner{Format: []openrtb2.Format{{W: 320, H: 480}}}
		imp.Instl = 1
	case auction.FormatRewarded:
		imp.Banner = &openrtb2.Banner{Format: []openrtb2.Format{{W: 320, H: 480}}}
		imp.Instl = 1
		imp.Rwdd = 1
	case auction.FormatNative:
		imp.Native = &openrtb2.Native{Request: "{}", Ver: "1.2"}
	default:
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("unsupported ad format %q", request.AdFormat)}
	}

	ortbReq := &openrtb2.BidRequest{
		ID:   request.RequestID,
		Imp:  []openrtb2.Imp{imp},
		TMax: a.tmax,
		Cur:  []string{a.floorCurrency},
	}
	if err := unmarshalOptional(request.App, &ortbReq.App, "app"); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(request.Device, &ortbReq.Device, "device"); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(request.User, &ortbReq.User, "user"); err != nil {
		return nil, err
	}

	// Invalid consent strings are dropped here; the auction already logged them.
	policies, _ := privacy.Parse(request.Consent)
	policies.Write(ortbReq)

	body, err := json.Marshal(ortbReq)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "imp.0.ext.gpid", request.PlacementID); err != nil {
		return nil, err
	}
	if request.AdFormat == auction.FormatRewarded {
		if body, err = sjson.SetBytes(body, "imp.0.ext.prebid.is_rewarded_inventory", 1); err != nil {
			return nil, err
		}
	}
	if len(a.template) > 0 {
		if body, err = jsonpatch.MergePatch(a.template, body); err != nil {
			return nil, fmt.Errorf("merging request template: %w", err)
		}
	}

	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")
	headers.Add("x-openrtb-version", "2.6")

	return &adapters.RequestData{
		Method:  http.MethodPost,
		Uri:     a.endpoint,
		Body:    body,
		Headers: headers,
	}, nil
}

func unmarshalOptional[T any](raw json.RawMessage, dst **T, field string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return &errortypes.BadInput{Message: fmt.Sprintf("%s is not a valid OpenRTB object: %v", field, err)}
	}
	*dst = &v
	return nil
}

// MakeBid unpacks the highest priced bid of the response.
func (a *OpenRTBAdapter) MakeBid(request *auction.BidOpportunity, response *adapters.ResponseData) (*auction.Bid, error) {
	if err := adapters.CheckResponseStatus(response); err != nil {
		return nil, err
	}

	var bidResp openrtb2.BidResponse
	if err := json.Unmarshal(response.Body, &bidResp); err != nil {
		return nil, &errortypes.BadServerResponse{Message: fmt.Sprintf("Bad server response: %v", err)}
	}

	var best *openrtb2.Bid
	var bestSeat string
	for i := range bidResp.SeatBid {
		seatBid := &bidResp.SeatBid[i]
		for j := range seatBid.Bid {
			bid := &seatBid.Bid[j]
			if best == nil || bid.Price > best.Price {
				best = bid
				bestSeat = seatBid.Seat
			}
		}
	}
	if best == nil || best.Price <= 0 {
		return nil, &errortypes.NoBid{Reason: string(auction.NoBidNoFill)}
	}

	ttl := defaultCreativeTTL
	if best.Exp > 0 {
		ttl = int(best.Exp)
	} else if v := gjson.GetBytes(best.Ext, "creative_ttl"); v.Exists() && v.Int() > 0 {
		ttl = int(v.Int())
	}

	currency := bidResp.Cur
	if currency == "" {
		currency = a.floorCurrency
	}

	meta, err := json.Marshal(bidMetadata{
		AdM:     best.AdM,
		ADomain: best.ADomain,
		CrID:    best.CrID,
		Seat:    bestSeat,
		Ext:     best.Ext,
	})
	if err != nil {
		return nil, err
	}

	bid := &auction.Bid{
		CPM:         best.Price,
		Currency:    currency,
		CreativeURL: best.NURL,
		TTLSeconds:  ttl,
		Metadata:    meta,
	}
	if v := gjson.GetBytes(best.Ext, "latency_ms"); v.Exists() {
		latency := v.Int()
		bid.LatencyMs = &latency
	}
	return bid, nil
}

// Builder builds a new instance of the OpenRTB adapter for the given name with the given config.
//
// extra_info may carry "floor_currency" and a "request_template" object which is merged under
// every outbound request.
func Builder(name string, cfg config.Adapter, client *http.Client) (adapters.Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("openrtb adapter requires an endpoint")
	}
	if cfg.ExtraInfo != "" && !gjson.Valid(cfg.ExtraInfo) {
		return nil, fmt.Errorf("adapter %s: extra_info is not valid JSON", name)
	}

	bidder := &OpenRTBAdapter{
		endpoint:      cfg.Endpoint,
		tmax:          int64(cfg.TimeoutMs),
		floorCurrency: "USD",
	}
	if cur := gjson.Get(cfg.ExtraInfo, "floor_currency"); cur.Exists() {
		bidder.floorCurrency = strings.ToUpper(cur.String())
	}
	if tmpl := gjson.Get(cfg.ExtraInfo, "request_template"); tmpl.IsObject() {
		bidder.template = []byte(tmpl.Raw)
	}
	return adapters.AdaptHttpBidder(bidder, client, name), nil
}
