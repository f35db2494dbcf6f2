package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/singleflight"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/rivalapexmediation/auction-server/exchange"
	"github.com/rivalapexmediation/auction-server/metrics"
)

const maxRequestBodyBytes = 512 * 1024

// requestSchema only checks the shape of the body. Required fields and value ranges are
// enforced by auction.BidOpportunity.Validate so both paths report the same messages.
const requestSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "object",
  "properties": {
    "requestId": {"type": "string"},
    "placementId": {"type": "string"},
    "adFormat": {"type": "string"},
    "floorCpm": {"type": ["number", "null"]},
    "consent": {
      "type": "object",
      "properties": {
        "gdprApplies": {"type": "boolean"},
        "tcString": {"type": "string"},
        "usPrivacy": {"type": "string"},
        "gpp": {"type": "string"},
        "coppa": {"type": "boolean"},
        "limitAdTracking": {"type": "boolean"}
      }
    },
    "device": {"type": "object"},
    "app": {"type": "object"},
    "user": {"type": "object"},
    "migration": {
      "type": "object",
      "properties": {
        "experimentId": {"type": "string"},
        "arm": {"type": "string"},
        "assignmentTs": {"type": "integer"},
        "mirrorPercent": {"type": "number"},
        "mode": {"type": "string"}
      }
    }
  }
}`

// IdempotencyCache replays decisions for retried request ids.
type IdempotencyCache interface {
	Get(ctx context.Context, requestID string) (*auction.Decision, bool)
	Put(ctx context.Context, requestID string, d *auction.Decision) *auction.Decision
	Enabled() bool
}

type auctionEndpoint struct {
	ex     exchange.Exchange
	cache  IdempotencyCache
	me     metrics.MetricsEngine
	schema *gojsonschema.Schema
	group  singleflight.Group
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewAuctionEndpoint serves POST /v1/auction. Retries of a request id are answered from the
// idempotency cache and concurrent duplicates share a single auction.
func NewAuctionEndpoint(ex exchange.Exchange, cache IdempotencyCache, me metrics.MetricsEngine) (httprouter.Handle, error) {
	if ex == nil || cache == nil || me == nil {
		return nil, errors.New("NewAuctionEndpoint requires non-nil arguments")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("auction request schema: %v", err)
	}
	endpoint := &auctionEndpoint{
		ex:     ex,
		cache:  cache,
		me:     me,
		schema: schema,
	}
	return endpoint.Auction, nil
}

func (e *auctionEndpoint) Auction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	status := metrics.RequestStatusOK
	defer func() {
		e.me.RecordRequest(status)
		e.me.RecordRequestTime(status, time.Since(start))
	}()

	opportunity, err := e.parseRequest(r)
	if err != nil {
		status = metrics.RequestStatusBadInput
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	if e.cache.Enabled() {
		if d, ok := e.cache.Get(ctx, opportunity.RequestID); ok {
			e.me.RecordIdempotency(true)
			status = metrics.RequestStatusReplay
			writeDecision(w, d)
			return
		}
		e.me.RecordIdempotency(false)
	}

	d, err := e.holdAuction(ctx, opportunity)
	if err != nil {
		if errortypes.ReadCode(err) == errortypes.BadInputErrorCode {
			status = metrics.RequestStatusBadInput
			writeError(w, http.StatusBadRequest, err)
			return
		}
		status = metrics.RequestStatusErr
		glog.Errorf("auction %s failed: %v", opportunity.RequestID, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDecision(w, d)
}

// holdAuction runs the auction for the request id unless one is already in flight, in which case
// the caller waits for that result. The auction is detached from the request context so that a
// client hanging up does not fail the other waiters; it is still bounded by the auction timeout.
func (e *auctionEndpoint) holdAuction(ctx context.Context, opportunity *auction.BidOpportunity) (*auction.Decision, error) {
	detached := context.WithoutCancel(ctx)
	v, err, _ := e.group.Do(opportunity.RequestID, func() (interface{}, error) {
		d, err := e.ex.HoldAuction(detached, opportunity)
		if err != nil {
			return nil, err
		}
		return e.cache.Put(detached, opportunity.RequestID, d), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*auction.Decision), nil
}

func (e *auctionEndpoint) parseRequest(r *http.Request) (*auction.BidOpportunity, error) {
	if r.Body == nil {
		return nil, &errortypes.BadInput{Message: "request body is empty"}
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("failed to read request body: %v", err)}
	}
	if len(body) == 0 {
		return nil, &errortypes.BadInput{Message: "request body is empty"}
	}
	if len(body) > maxRequestBodyBytes {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("request body exceeds %d bytes", maxRequestBodyBytes)}
	}

	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("invalid request format: %v", err)}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &errortypes.BadInput{Message: "invalid request: " + strings.Join(problems, "; ")}
	}

	var opportunity auction.BidOpportunity
	if err := json.Unmarshal(body, &opportunity); err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("invalid request format: %v", err)}
	}
	if err := opportunity.Validate(); err != nil {
		return nil, err
	}
	return &opportunity, nil
}

func writeDecision(w http.ResponseWriter, d *auction.Decision) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		glog.Errorf("failed to write auction response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(errorResponse{Error: err.Error()})
}
