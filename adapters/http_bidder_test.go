package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBidder struct {
	endpoint string
}

func (b *echoBidder) MakeRequest(request *auction.BidOpportunity) (*RequestData, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	return &RequestData{
		Method:  http.MethodPost,
		Uri:     b.endpoint,
		Body:    body,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func (b *echoBidder) MakeBid(request *auction.BidOpportunity, response *ResponseData) (*auction.Bid, error) {
	if err := CheckResponseStatus(response); err != nil {
		return nil, err
	}
	var bid auction.Bid
	if err := json.Unmarshal(response.Body, &bid); err != nil {
		return nil, &errortypes.BadServerResponse{Message: err.Error()}
	}
	return &bid, nil
}

func TestAdaptHttpBidderSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"cpm":1.5,"currency":"USD","creativeUrl":"https://cdn.example.com/c.html","ttlSeconds":300}`))
	}))
	defer server.Close()

	adapter := AdaptHttpBidder(&echoBidder{endpoint: server.URL}, server.Client(), "echo")
	bid, err := adapter.RequestBid(context.Background(), &auction.BidOpportunity{RequestID: "r1"})

	require.NoError(t, err)
	assert.Equal(t, "echo", bid.AdapterName, "adapter name is stamped on the bid")
	assert.Equal(t, 1.5, bid.CPM)
	assert.Equal(t, "USD", bid.Currency)
}

func TestAdaptHttpBidderStatusCodes(t *testing.T) {
	testCases := []struct {
		description  string
		status       int
		expectedCode int
		expectedMsg  string
	}{
		{
			description:  "No content is a no fill",
			status:       http.StatusNoContent,
			expectedCode: errortypes.NoBidErrorCode,
			expectedMsg:  "no bid: NO_FILL",
		},
		{
			description:  "Server errors are bad server responses",
			status:       http.StatusServiceUnavailable,
			expectedCode: errortypes.BadServerResponseErrorCode,
		},
		{
			description:  "Client errors are adapter specific no-bids",
			status:       http.StatusBadRequest,
			expectedCode: errortypes.NoBidErrorCode,
			expectedMsg:  "no bid: STATUS_400",
		},
	}

	for _, test := range testCases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(test.status)
		}))

		adapter := AdaptHttpBidder(&echoBidder{endpoint: server.URL}, server.Client(), "echo")
		bid, err := adapter.RequestBid(context.Background(), &auction.BidOpportunity{RequestID: "r1"})
		server.Close()

		assert.Nil(t, bid, test.description)
		assert.Equal(t, test.expectedCode, errortypes.ReadCode(err), test.description)
		if test.expectedMsg != "" {
			assert.EqualError(t, err, test.expectedMsg, test.description)
		}
	}
}

func TestAdaptHttpBidderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	adapter := AdaptHttpBidder(&echoBidder{endpoint: server.URL}, server.Client(), "echo")
	start := time.Now()
	bid, err := adapter.RequestBid(ctx, &auction.BidOpportunity{RequestID: "r1"})

	assert.Nil(t, bid)
	assert.Equal(t, errortypes.TimeoutErrorCode, errortypes.ReadCode(err))
	assert.Less(t, time.Since(start), time.Second, "the call returns at the deadline")
}

func TestAdaptHttpBidderConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	adapter := AdaptHttpBidder(&echoBidder{endpoint: url}, http.DefaultClient, "echo")
	bid, err := adapter.RequestBid(context.Background(), &auction.BidOpportunity{RequestID: "r1"})

	assert.Nil(t, bid)
	assert.Error(t, err)
	assert.Equal(t, errortypes.UnknownErrorCode, errortypes.ReadCode(err))
}

func TestDescriptorSupports(t *testing.T) {
	d := Descriptor{Formats: []auction.AdFormat{auction.FormatBanner, auction.FormatNative}}
	assert.True(t, d.Supports(auction.FormatBanner))
	assert.False(t, d.Supports(auction.FormatRewarded))
}
