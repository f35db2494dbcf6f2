package fraud

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"

func newRequest() Request {
	return Request{
		Opportunity: &auction.BidOpportunity{
			RequestID:   "req-1",
			PlacementID: "pl-1",
			AdFormat:    auction.FormatBanner,
			Device:      json.RawMessage(`{"ua":"` + iphoneUA + `","ip":"10.0.0.1"}`),
		},
		BidID: "bid-1",
		Bid:   &auction.Bid{AdapterName: "openrtb", CPM: 1.2, Currency: "USD"},
	}
}

func TestScoreSendsPayload(t *testing.T) {
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
	}))
	defer server.Close()

	me := &metrics.MetricsEngineMock{}
	me.On("RecordRiskScoring", metrics.RiskScoringOK).Return()

	scorer := NewRiskScorer(config.RiskScoring{Endpoint: server.URL, TimeoutMs: 500, Workers: 1, QueueSize: 1}, server.Client(), me)
	scorer.Score(newRequest())

	select {
	case body := <-received:
		assert.Equal(t, "req-1", gjson.GetBytes(body, "requestId").String())
		assert.Equal(t, "bid-1", gjson.GetBytes(body, "bidId").String())
		assert.Equal(t, "openrtb", gjson.GetBytes(body, "adapter").String())
		assert.Equal(t, 1.2, gjson.GetBytes(body, "cpm").Float())
		assert.True(t, gjson.GetBytes(body, "userAgent.mobile").Bool())
		assert.False(t, gjson.GetBytes(body, "userAgent.bot").Bool())
		assert.Equal(t, "Safari", gjson.GetBytes(body, "userAgent.browser").String())
	case <-time.After(2 * time.Second):
		t.Fatal("scoring request was never sent")
	}

	scorer.Shutdown()
	me.AssertCalled(t, "RecordRiskScoring", metrics.RiskScoringOK)
}

func TestScoreFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	me := &metrics.MetricsEngineMock{}
	me.On("RecordRiskScoring", metrics.RiskScoringFailed).Return()

	scorer := NewRiskScorer(config.RiskScoring{Endpoint: server.URL, TimeoutMs: 500, Workers: 1, QueueSize: 1}, server.Client(), me)
	scorer.Score(newRequest())
	scorer.Shutdown()

	me.AssertCalled(t, "RecordRiskScoring", metrics.RiskScoringFailed)
}

func TestScoreDoesNotWaitForSlowService(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	me := &metrics.MetricsEngineMock{}
	me.On("RecordRiskScoring", metrics.RiskScoringFailed).Return()

	scorer := NewRiskScorer(config.RiskScoring{Endpoint: server.URL, TimeoutMs: 50, Workers: 1, QueueSize: 1}, server.Client(), me)

	start := time.Now()
	scorer.Score(newRequest())
	assert.Less(t, time.Since(start), 40*time.Millisecond, "Score returns before the service answers")

	scorer.Shutdown()
	close(release)
	me.AssertCalled(t, "RecordRiskScoring", metrics.RiskScoringFailed)
}

type testPool struct {
	accept bool
	tasks  []func()
}

func (t *testPool) TrySubmit(task func()) bool {
	if t.accept {
		t.tasks = append(t.tasks, task)
	}
	return t.accept
}

func (t *testPool) StopAndWait() {
	for _, task := range t.tasks {
		task()
	}
	t.tasks = nil
}

func TestScoreRejectedWhenQueueFull(t *testing.T) {
	me := &metrics.MetricsEngineMock{}
	me.On("RecordRiskScoring", metrics.RiskScoringRejected).Return()

	scorer := &RiskScorer{pool: &testPool{}, me: me}
	scorer.Score(newRequest())

	me.AssertCalled(t, "RecordRiskScoring", metrics.RiskScoringRejected)
}

func TestScoreBuildsPayloadOffTheCallerPath(t *testing.T) {
	me := &metrics.MetricsEngineMock{}
	pool := &testPool{accept: true}
	scorer := &RiskScorer{pool: pool, me: me}

	req := newRequest()
	req.Opportunity.Device = json.RawMessage(`{"ua":`)
	scorer.Score(req)

	require.Len(t, pool.tasks, 1)
	me.AssertNotCalled(t, "RecordRiskScoring", metrics.RiskScoringFailed)

	me.On("RecordRiskScoring", metrics.RiskScoringFailed).Return()
	assert.NotPanics(t, pool.StopAndWait)
	me.AssertCalled(t, "RecordRiskScoring", metrics.RiskScoringFailed)
}

func TestBuildPayloadWithoutUserAgent(t *testing.T) {
	req := newRequest()
	req.Opportunity.Device = nil

	p := buildPayload(req)
	require.Nil(t, p.UserAgent)
	assert.Equal(t, auction.FormatBanner, p.AdFormat)
}

func TestNoopScorer(t *testing.T) {
	assert.NotPanics(t, func() { NoopScorer{}.Score(newRequest()) })
}
