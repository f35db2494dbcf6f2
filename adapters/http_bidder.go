package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"golang.org/x/net/context/ctxhttp"
)

// HttpBidder is the interface which remote bid sources implement.
//
// Its only responsibility is to make an HTTP request from a BidOpportunity, and return a Bid from
// the HTTP response. Deadlines and cancellation are handled by AdaptHttpBidder.
type HttpBidder interface {
	// MakeRequest builds the HTTP request which should be made to fetch a bid.
	MakeRequest(request *auction.BidOpportunity) (*RequestData, error)

	// MakeBid unpacks the server's response into a Bid. Responses which carry no bid should be
	// reported as an *errortypes.NoBid.
	MakeBid(request *auction.BidOpportunity, response *ResponseData) (*auction.Bid, error)
}

// AdaptHttpBidder bridges the APIs between an Adapter and an HttpBidder.
func AdaptHttpBidder(bidder HttpBidder, client *http.Client, name string) Adapter {
	return &bidderAdapter{
		Bidder: bidder,
		Client: client,
		name:   name,
	}
}

type bidderAdapter struct {
	Bidder HttpBidder
	Client *http.Client
	name   string
}

func (bidder *bidderAdapter) RequestBid(ctx context.Context, request *auction.BidOpportunity) (*auction.Bid, error) {
	reqData, err := bidder.Bidder.MakeRequest(request)
	if err != nil {
		return nil, err
	}

	httpInfo := bidder.doRequest(ctx, reqData)
	if httpInfo.err != nil {
		return nil, httpInfo.err
	}

	bid, err := bidder.Bidder.MakeBid(request, httpInfo.response)
	if err != nil {
		return nil, err
	}
	if bid == nil {
		return nil, &errortypes.NoBid{Reason: string(auction.NoBidNoFill)}
	}
	bid.AdapterName = bidder.name
	return bid, nil
}

// doRequest makes a request, handles the response, and returns the data needed by the
// HttpBidder interface.
func (bidder *bidderAdapter) doRequest(ctx context.Context, req *RequestData) *httpCallInfo {
	httpReq, err := http.NewRequest(req.Method, req.Uri, bytes.NewBuffer(req.Body))
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq.Header = req.Headers

	httpResp, err := ctxhttp.Do(ctx, bidder.Client, httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctx.Err() != nil {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}

	return &httpCallInfo{
		request: req,
		response: &ResponseData{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Headers:    httpResp.Header,
		},
	}
}

type httpCallInfo struct {
	request  *RequestData
	response *ResponseData
	err      error
}

// CheckResponseStatus maps the common status codes onto errors. It returns nil for 200.
//
// 204 is a plain no fill. 5xx responses count against the adapter's health; 4xx and anything else
// are reported as an adapter specific no-bid.
func CheckResponseStatus(response *ResponseData) error {
	switch {
	case response.StatusCode == http.StatusOK:
		return nil
	case response.StatusCode == http.StatusNoContent:
		return &errortypes.NoBid{Reason: string(auction.NoBidNoFill)}
	case response.StatusCode >= http.StatusInternalServerError:
		return &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Unexpected status code: %d. Bid source internal error.", response.StatusCode),
		}
	default:
		return &errortypes.NoBid{Reason: fmt.Sprintf("STATUS_%d", response.StatusCode)}
	}
}

// ResponseData packages together information from the server's http.Response.
type ResponseData struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// RequestData packages together the fields needed to make an http.Request.
type RequestData struct {
	Method  string
	Uri     string
	Body    []byte
	Headers http.Header
}
