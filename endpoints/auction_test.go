package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/rivalapexmediation/auction-server/idempotency"
	"github.com/rivalapexmediation/auction-server/metrics"
	"github.com/rivalapexmediation/auction-server/statestore"
)

const validRequest = `{
	"requestId": "req-1",
	"placementId": "pl-1",
	"adFormat": "banner",
	"floorCpm": 0.5,
	"consent": {"gdprApplies": false, "usPrivacy": "1YNN"}
}`

type fakeExchange struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{}
}

func (f *fakeExchange) HoldAuction(ctx context.Context, o *auction.BidOpportunity) (*auction.Decision, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	landscapeID := fmt.Sprintf("landscape-%d", call)
	return &auction.Decision{
		Success:     true,
		LandscapeID: landscapeID,
		Response: &auction.Response{
			RequestID:   o.RequestID,
			LandscapeID: landscapeID,
			BidID:       fmt.Sprintf("bid-%d", call),
			Adapter:     "alpha",
			CPM:         1.25,
			Currency:    "USD",
			CreativeURL: "https://cdn.example.com/d?token=abc&x=1",
			Tracking: auction.Tracking{
				Impression: "https://t.example.com/i",
				Click:      "https://t.example.com/c",
			},
			ConsentEcho: o.Consent,
		},
		LatencyMs: 12,
		Candidates: []auction.CandidateSnapshot{
			{Adapter: "alpha", Status: auction.StatusBid},
		},
	}, nil
}

func (f *fakeExchange) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newCache(enabled bool) *idempotency.Cache {
	cfg := config.Idempotency{Enabled: enabled, TTLSeconds: 30, LocalCacheSize: "0"}
	return idempotency.New(cfg, statestore.NewMemoryStore(time.Minute))
}

func newMetricsMock() *metrics.MetricsEngineMock {
	me := &metrics.MetricsEngineMock{}
	me.On("RecordRequest", mock.Anything).Return()
	me.On("RecordRequestTime", mock.Anything, mock.Anything).Return()
	me.On("RecordIdempotency", mock.Anything).Return()
	return me
}

func newTestEndpoint(t *testing.T, ex *fakeExchange, cache IdempotencyCache, me metrics.MetricsEngine) http.Handler {
	handle, err := NewAuctionEndpoint(ex, cache, me)
	require.NoError(t, err)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle(w, r, nil)
	})
}

func post(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auction", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestAuctionEndpointServesDecision(t *testing.T) {
	ex := &fakeExchange{}
	me := newMetricsMock()
	handler := newTestEndpoint(t, ex, newCache(true), me)

	w := post(handler, validRequest)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var d auction.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.True(t, d.Success)
	assert.Equal(t, "landscape-1", d.LandscapeID)
	require.NotNil(t, d.Response)
	assert.Equal(t, "req-1", d.Response.RequestID)
	assert.Equal(t, "https://cdn.example.com/d?token=abc&x=1", d.Response.CreativeURL)
	require.NotNil(t, d.Response.ConsentEcho)
	assert.Equal(t, "1YNN", d.Response.ConsentEcho.USPrivacy)
	assert.NotContains(t, w.Body.String(), "candidates", "recording data never reaches callers")

	me.AssertCalled(t, "RecordRequest", metrics.RequestStatusOK)
	me.AssertCalled(t, "RecordIdempotency", false)
}

func TestAuctionEndpointBadInput(t *testing.T) {
	testCases := []struct {
		description string
		body        string
		message     string
	}{
		{description: "Empty body", body: "", message: "request body is empty"},
		{description: "Not JSON", body: "{not json", message: "invalid request"},
		{description: "Not an object", body: `[1,2]`, message: "invalid request"},
		{description: "Floor of the wrong type", body: `{"requestId":"r","placementId":"p","adFormat":"banner","floorCpm":"cheap"}`, message: "floorCpm"},
		{description: "Missing request id", body: `{"placementId":"p","adFormat":"banner","floorCpm":0}`, message: "requestId is required"},
		{description: "Missing floor", body: `{"requestId":"r","placementId":"p","adFormat":"banner"}`, message: "floorCpm is required"},
		{description: "Unknown format", body: `{"requestId":"r","placementId":"p","adFormat":"video","floorCpm":0}`, message: "adFormat"},
		{description: "Negative floor", body: `{"requestId":"r","placementId":"p","adFormat":"banner","floorCpm":-1}`, message: "non-negative"},
		{description: "Migration without arm", body: `{"requestId":"r","placementId":"p","adFormat":"banner","floorCpm":0,"migration":{"experimentId":"e"}}`, message: "migration.arm"},
		{description: "Too large", body: `{"requestId":"` + strings.Repeat("x", maxRequestBodyBytes) + `"}`, message: "exceeds"},
	}

	for _, test := range testCases {
		ex := &fakeExchange{}
		me := newMetricsMock()
		handler := newTestEndpoint(t, ex, newCache(true), me)

		w := post(handler, test.body)

		assert.Equal(t, http.StatusBadRequest, w.Code, test.description)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), test.description)
		assert.False(t, resp.Success, test.description)
		assert.Contains(t, resp.Error, test.message, test.description)
		assert.Zero(t, ex.callCount(), test.description)
		me.AssertCalled(t, "RecordRequest", metrics.RequestStatusBadInput)
	}
}

func TestAuctionEndpointReplaysRetries(t *testing.T) {
	ex := &fakeExchange{}
	me := newMetricsMock()
	handler := newTestEndpoint(t, ex, newCache(true), me)

	first := post(handler, validRequest)
	second := post(handler, validRequest)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String(), "a retry replays the original decision")
	assert.Equal(t, 1, ex.callCount())
	me.AssertCalled(t, "RecordIdempotency", true)
	me.AssertCalled(t, "RecordRequest", metrics.RequestStatusReplay)
}

func TestAuctionEndpointCoalescesConcurrentDuplicates(t *testing.T) {
	ex := &fakeExchange{release: make(chan struct{})}
	handler := newTestEndpoint(t, ex, newCache(true), newMetricsMock())

	const callers = 8
	bodies := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := post(handler, validRequest)
			bodies[i] = w.Body.String()
		}(i)
	}

	assert.Eventually(t, func() bool { return ex.callCount() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(ex.release)
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Equal(t, bodies[0], bodies[i], "every duplicate sees the same decision")
	}
	assert.LessOrEqual(t, ex.callCount(), callers)
}

func TestAuctionEndpointWithoutIdempotency(t *testing.T) {
	ex := &fakeExchange{}
	me := newMetricsMock()
	handler := newTestEndpoint(t, ex, newCache(false), me)

	first := post(handler, validRequest)
	second := post(handler, validRequest)

	assert.NotEqual(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 2, ex.callCount())
	me.AssertNotCalled(t, "RecordIdempotency", mock.Anything)
}

func TestAuctionEndpointErrors(t *testing.T) {
	testCases := []struct {
		description    string
		err            error
		expectedCode   int
		expectedStatus metrics.RequestStatus
	}{
		{
			description:    "Signing failure",
			err:            &errortypes.FailedToSign{Message: "no key"},
			expectedCode:   http.StatusInternalServerError,
			expectedStatus: metrics.RequestStatusErr,
		},
		{
			description:    "Rejected by the exchange",
			err:            &errortypes.BadInput{Message: "bad floor"},
			expectedCode:   http.StatusBadRequest,
			expectedStatus: metrics.RequestStatusBadInput,
		},
	}

	for _, test := range testCases {
		ex := &fakeExchange{err: test.err}
		me := newMetricsMock()
		cache := newCache(true)
		handler := newTestEndpoint(t, ex, cache, me)

		w := post(handler, validRequest)

		assert.Equal(t, test.expectedCode, w.Code, test.description)
		assert.Contains(t, w.Body.String(), test.err.Error(), test.description)
		me.AssertCalled(t, "RecordRequest", test.expectedStatus)

		_, cached := cache.Get(context.Background(), "req-1")
		assert.False(t, cached, "%s: failures are not cached", test.description)
	}
}

func TestNewAuctionEndpointRequiresDependencies(t *testing.T) {
	_, err := NewAuctionEndpoint(nil, newCache(true), newMetricsMock())
	assert.Error(t, err)
	_, err = NewAuctionEndpoint(&fakeExchange{}, nil, newMetricsMock())
	assert.Error(t, err)
}
