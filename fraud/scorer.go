// Package fraud submits auction winners to the external risk scoring service. Scoring is observe
// only: submissions never block the caller and their results never reach the auction.
package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/alitto/pond"
	"github.com/golang/glog"
	"github.com/mssola/user_agent"
	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
	"github.com/tidwall/gjson"
	"golang.org/x/net/context/ctxhttp"
)

// Scorer accepts winners for asynchronous scoring.
type Scorer interface {
	Score(request Request)
}

// Request is the winning context handed to the scorer.
type Request struct {
	Opportunity *auction.BidOpportunity
	BidID       string
	Bid         *auction.Bid
}

type WorkerPool interface {
	TrySubmit(task func()) bool
	StopAndWait()
}

type payload struct {
	RequestID   string           `json:"requestId"`
	PlacementID string           `json:"placementId"`
	AdFormat    auction.AdFormat `json:"adFormat"`
	BidID       string           `json:"bidId"`
	Adapter     string           `json:"adapter"`
	CPM         float64          `json:"cpm"`
	Currency    string           `json:"currency"`
	Device      json.RawMessage  `json:"device,omitempty"`
	App         json.RawMessage  `json:"app,omitempty"`
	UserAgent   *userAgentInfo   `json:"userAgent,omitempty"`
}

type userAgentInfo struct {
	Bot     bool   `json:"bot"`
	Mobile  bool   `json:"mobile"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// RiskScorer posts winners to an HTTP scoring endpoint from a bounded worker pool.
type RiskScorer struct {
	pool     WorkerPool
	client   *http.Client
	endpoint string
	timeout  time.Duration
	me       metrics.MetricsEngine
}

func NewRiskScorer(cfg config.RiskScoring, client *http.Client, me metrics.MetricsEngine) *RiskScorer {
	return &RiskScorer{
		pool:     pond.New(cfg.Workers, cfg.QueueSize),
		client:   client,
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout(),
		me:       me,
	}
}

// Score queues the winner. A full queue drops the submission. The payload is built by the worker.
func (s *RiskScorer) Score(request Request) {
	if request.Opportunity == nil || request.Bid == nil {
		return
	}
	bid := *request.Bid
	request.Bid = &bid

	if !s.pool.TrySubmit(func() { s.send(request) }) {
		s.me.RecordRiskScoring(metrics.RiskScoringRejected)
	}
}

func (s *RiskScorer) send(request Request) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("risk scoring panic: %v, Stack trace is: %v", r, string(debug.Stack()))
			s.me.RecordRiskScoring(metrics.RiskScoringFailed)
		}
	}()

	body, err := json.Marshal(buildPayload(request))
	if err != nil {
		glog.Warningf("risk scoring: marshal payload for request %s: %v", request.Opportunity.RequestID, err)
		s.me.RecordRiskScoring(metrics.RiskScoringFailed)
		return
	}

	// The auction context is gone by the time this runs.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.post(ctx, body); err != nil {
		glog.Warningf("risk scoring: %v", err)
		s.me.RecordRiskScoring(metrics.RiskScoringFailed)
		return
	}
	s.me.RecordRiskScoring(metrics.RiskScoringOK)
}

func (s *RiskScorer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ctxhttp.Do(ctx, s.client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("scoring service responded with status %d", resp.StatusCode)
	}
	return nil
}

// Shutdown waits for queued submissions to finish.
func (s *RiskScorer) Shutdown() {
	s.pool.StopAndWait()
}

func buildPayload(request Request) payload {
	opp := request.Opportunity
	p := payload{
		RequestID:   opp.RequestID,
		PlacementID: opp.PlacementID,
		AdFormat:    opp.AdFormat,
		BidID:       request.BidID,
		Adapter:     request.Bid.AdapterName,
		CPM:         request.Bid.CPM,
		Currency:    request.Bid.Currency,
		Device:      opp.Device,
		App:         opp.App,
	}
	if ua := gjson.GetBytes(opp.Device, "ua").String(); ua != "" {
		parsed := user_agent.New(ua)
		name, _ := parsed.Browser()
		p.UserAgent = &userAgentInfo{
			Bot:     parsed.Bot(),
			Mobile:  parsed.Mobile(),
			OS:      parsed.OS(),
			Browser: name,
		}
	}
	return p
}

// NoopScorer discards every submission.
type NoopScorer struct{}

func (NoopScorer) Score(Request) {}
