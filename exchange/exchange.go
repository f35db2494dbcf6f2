package exchange

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/getsentry/sentry-go"
	"github.com/gofrs/uuid"
	"github.com/golang/glog"

	"github.com/rivalapexmediation/auction-server/adapters"
	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/currency"
	"github.com/rivalapexmediation/auction-server/errortypes"
	"github.com/rivalapexmediation/auction-server/experiment/outcomes"
	"github.com/rivalapexmediation/auction-server/fraud"
	"github.com/rivalapexmediation/auction-server/metrics"
	"github.com/rivalapexmediation/auction-server/privacy"
	"github.com/rivalapexmediation/auction-server/tokens"
)

// Exchange runs a single auction among the registered adapters.
type Exchange interface {
	// HoldAuction returns a decision for every well formed request, including the ones that do
	// not deliver. An error means either a *errortypes.BadInput request or a failure while
	// finalizing the winner, such as *errortypes.FailedToSign.
	HoldAuction(ctx context.Context, request *auction.BidOpportunity) (*auction.Decision, error)
}

// CircuitBreaker gates calls to unhealthy adapters.
type CircuitBreaker interface {
	Allow(ctx context.Context, adapter string) bool
	RecordSuccess(ctx context.Context, adapter string)
	RecordFailure(ctx context.Context, adapter string)
}

// TokenIssuer mints the signed tracking and delivery URLs of a winning bid.
type TokenIssuer interface {
	Issue(subject tokens.Subject) (*tokens.Issued, error)
}

// OutcomeRecorder accepts one record per auction of an experiment arm. It must not block.
type OutcomeRecorder interface {
	Record(rec outcomes.Record)
}

type BidIDGenerator interface {
	New() (string, error)
}

type bidIDGenerator struct{}

func (bidIDGenerator) New() (string, error) {
	rawUuid, err := uuid.NewV4()
	return rawUuid.String(), err
}

type exchange struct {
	registry       *adapters.Registry
	breaker        CircuitBreaker
	issuer         TokenIssuer
	scorer         fraud.Scorer
	recorder       OutcomeRecorder
	conversions    currency.Conversions
	currency       string
	timeout        time.Duration
	me             metrics.MetricsEngine
	clock          clock.Clock
	bidIDGenerator BidIDGenerator
	// auctionContext derives the context shared by every adapter call of one auction.
	auctionContext func(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc)
}

// Container to pass the outcome of each adapter goroutine back to the auction.
type bidResponseWrapper struct {
	index   int
	outcome auction.Outcome
}

type adapterResult struct {
	bid *auction.Bid
	err error
}

// NewExchange wires an auction engine. recorder may be nil when outcome recording is disabled.
func NewExchange(registry *adapters.Registry, breaker CircuitBreaker, issuer TokenIssuer, scorer fraud.Scorer, recorder OutcomeRecorder, conversions currency.Conversions, cfg config.Auction, me metrics.MetricsEngine) Exchange {
	if scorer == nil {
		scorer = fraud.NoopScorer{}
	}
	return &exchange{
		registry:       registry,
		breaker:        breaker,
		issuer:         issuer,
		scorer:         scorer,
		recorder:       recorder,
		conversions:    conversions,
		currency:       cfg.Currency,
		timeout:        cfg.Timeout(),
		me:             me,
		clock:          clock.New(),
		bidIDGenerator: bidIDGenerator{},
		auctionContext: context.WithTimeout,
	}
}

func (e *exchange) HoldAuction(ctx context.Context, r *auction.BidOpportunity) (*auction.Decision, error) {
	start := e.clock.Now()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	labels := metrics.AuctionLabels{Format: r.AdFormat, Mode: r.Mode()}

	if r.Migration.IsControl() {
		decision := e.failure(r, start, "", auction.ReasonControlArm)
		e.record(r, decision, outcomes.StatusSkipped, "", nil, "")
		e.recordAuction(labels, metrics.AuctionControl, start)
		return decision, nil
	}

	entries := e.registry.ForFormat(r.AdFormat)
	if len(entries) == 0 {
		decision := e.failure(r, start, "", auction.ReasonNoAdapter)
		e.record(r, decision, outcomes.StatusError, "", nil, string(auction.ReasonNoAdapter))
		e.recordAuction(labels, metrics.AuctionNoAdapter, start)
		return decision, nil
	}

	policies, warnings := privacy.Parse(r.Consent)
	for _, w := range warnings {
		glog.V(2).Infof("Request %s: %v", r.RequestID, w)
	}
	e.me.RecordPrivacy(policies.Labels())

	auctionCtx, cancel := e.auctionContext(ctx, e.timeout)
	defer cancel()

	results := e.getAllBids(auctionCtx, entries, r)
	winner := selectWinner(results)
	// Adapters still running past this point are abandoned.
	cancel()

	snapshots := make([]auction.CandidateSnapshot, len(results))
	for i, o := range results {
		snapshots[i] = o.Snapshot()
	}

	if winner == nil {
		reason := auction.ReasonNoBid
		success := true
		if r.Mode() == auction.ModeShadow {
			reason = auction.ReasonShadowNoBid
			success = false
		}
		decision := e.failure(r, start, "", reason)
		decision.Success = success
		decision.Candidates = snapshots
		e.record(r, decision, outcomes.StatusNoFill, "", nil, "")
		e.recordAuction(labels, metrics.AuctionNoFill, start)
		return decision, nil
	}

	bidID, err := e.bidIDGenerator.New()
	if err != nil {
		decision := e.failure(r, start, "", "")
		decision.Candidates = snapshots
		e.record(r, decision, outcomes.StatusError, "", winner, err.Error())
		e.recordAuction(labels, metrics.AuctionError, start)
		return nil, fmt.Errorf("generate bid id: %v", err)
	}

	e.scorer.Score(fraud.Request{Opportunity: r, BidID: bidID, Bid: winner})

	if r.Mode() == auction.ModeShadow {
		decision := e.failure(r, start, bidID, auction.ReasonShadowMode)
		decision.Candidates = snapshots
		e.record(r, decision, outcomes.StatusWin, bidID, winner, "")
		e.recordAuction(labels, metrics.AuctionShadow, start)
		return decision, nil
	}

	issued, err := e.issuer.Issue(tokens.Subject{BidID: bidID, PlacementID: r.PlacementID, Bid: winner})
	if err != nil {
		decision := e.failure(r, start, bidID, "")
		decision.Candidates = snapshots
		e.record(r, decision, outcomes.StatusError, bidID, winner, err.Error())
		e.recordAuction(labels, metrics.AuctionError, start)
		return nil, err
	}

	landscapeID := NewLandscapeID(r.RequestID, bidID, e.clock.Now())
	decision := &auction.Decision{
		Success:     true,
		LandscapeID: landscapeID,
		Response: &auction.Response{
			RequestID:   r.RequestID,
			LandscapeID: landscapeID,
			BidID:       bidID,
			Adapter:     winner.AdapterName,
			CPM:         winner.CPM,
			Currency:    winner.Currency,
			TTLSeconds:  winner.TTLSeconds,
			CreativeURL: issued.DeliveryURL,
			Tracking: auction.Tracking{
				Impression: issued.ImpressionURL,
				Click:      issued.ClickURL,
			},
			Payload:     winner.Metadata,
			ConsentEcho: r.Consent,
		},
		LatencyMs:  e.clock.Since(start).Milliseconds(),
		Candidates: snapshots,
	}
	e.record(r, decision, outcomes.StatusWin, bidID, winner, "")
	e.recordAuction(labels, metrics.AuctionWin, start)
	return decision, nil
}

// failure builds a non delivering decision. bidID is empty unless a winner was chosen.
func (e *exchange) failure(r *auction.BidOpportunity, start time.Time, bidID string, reason auction.Reason) *auction.Decision {
	return &auction.Decision{
		Success:     false,
		LandscapeID: NewLandscapeID(r.RequestID, bidID, e.clock.Now()),
		Reason:      reason,
		LatencyMs:   e.clock.Since(start).Milliseconds(),
	}
}

func (e *exchange) recordAuction(labels metrics.AuctionLabels, result metrics.AuctionResult, start time.Time) {
	labels.Result = result
	e.me.RecordAuction(labels, e.clock.Since(start))
}

// record hands the outcome of an experiment arm to the recorder. Non experiment traffic is not
// recorded.
func (e *exchange) record(r *auction.BidOpportunity, d *auction.Decision, status outcomes.Status, bidID string, winner *auction.Bid, errorReason string) {
	if e.recorder == nil || r.Migration == nil {
		return
	}
	rec := outcomes.Record{
		ExperimentID: r.Migration.ExperimentID,
		RequestID:    r.RequestID,
		PlacementID:  r.PlacementID,
		Arm:          r.Migration.Arm,
		Mode:         r.Mode(),
		Status:       status,
		LandscapeID:  d.LandscapeID,
		BidID:        bidID,
		ErrorReason:  errorReason,
		LatencyMs:    d.LatencyMs,
		Snapshots:    d.Candidates,
	}
	if winner != nil {
		cpm := winner.CPM
		rec.Adapter = winner.AdapterName
		rec.CPM = &cpm
		rec.Currency = winner.Currency
		rec.Metadata = winner.Metadata
	}
	e.recorder.Record(rec)
}

// getAllBids calls every entry concurrently and returns their outcomes in entry order. It returns
// once each adapter has either answered or run out of time.
func (e *exchange) getAllBids(ctx context.Context, entries []adapters.Entry, r *auction.BidOpportunity) []auction.Outcome {
	chBids := make(chan bidResponseWrapper, len(entries))
	for i, entry := range entries {
		go func(i int, entry adapters.Entry) {
			chBids <- bidResponseWrapper{index: i, outcome: e.requestBid(ctx, entry, r)}
		}(i, entry)
	}

	results := make([]auction.Outcome, len(entries))
	for range entries {
		brw := <-chBids
		results[brw.index] = brw.outcome
	}
	return results
}

func (e *exchange) requestBid(ctx context.Context, entry adapters.Entry, r *auction.BidOpportunity) auction.Outcome {
	if !e.breaker.Allow(ctx, entry.Name) {
		e.me.RecordAdapterRequest(metrics.AdapterLabels{Adapter: entry.Name, Outcome: metrics.AdapterOutcomeCircuitOpen})
		return noBidOutcome(entry.Name, auction.NoBidCircuitOpen)
	}

	// The child deadline is the lesser of the adapter ceiling and what is left of the auction.
	adapterCtx, cancel := context.WithTimeout(ctx, entry.Timeout)
	defer cancel()

	start := e.clock.Now()
	bid, err := e.callAdapter(adapterCtx, entry, r)
	elapsed := e.clock.Since(start)

	// Breaker bookkeeping must survive the adapter deadline.
	bookkeepingCtx := context.WithoutCancel(ctx)

	var outcome auction.Outcome
	if err != nil {
		reason := errorToNoBidReason(err)
		if countsAsFailure(reason) {
			glog.V(2).Infof("Adapter %s failed for request %s: %v", entry.Name, r.RequestID, err)
			e.breaker.RecordFailure(bookkeepingCtx, entry.Name)
		} else {
			e.breaker.RecordSuccess(bookkeepingCtx, entry.Name)
		}
		outcome = noBidOutcome(entry.Name, reason)
	} else {
		e.breaker.RecordSuccess(bookkeepingCtx, entry.Name)
		validated := *bid
		validated.AdapterName = entry.Name
		if reason, ok := e.validateBid(&validated, r.Floor()); ok {
			outcome = auction.Outcome{Bid: &validated}
			e.me.RecordAdapterPrice(entry.Name, validated.CPM)
		} else {
			outcome = noBidOutcome(entry.Name, reason)
		}
	}

	labels := metrics.AdapterLabels{Adapter: entry.Name, Outcome: outcomeToMetric(outcome)}
	e.me.RecordAdapterRequest(labels)
	e.me.RecordAdapterTime(labels, elapsed)
	return outcome
}

// callAdapter runs the adapter in its own goroutine so that an adapter ignoring ctx still yields
// a timeout at the deadline. A late answer is dropped.
func (e *exchange) callAdapter(ctx context.Context, entry adapters.Entry, r *auction.BidOpportunity) (*auction.Bid, error) {
	chResult := make(chan adapterResult, 1)
	go e.recoverSafely(entry.Name, r, func() {
		bid, err := entry.Adapter.RequestBid(ctx, r)
		chResult <- adapterResult{bid: bid, err: err}
	}, chResult)()

	select {
	case result := <-chResult:
		if result.err == nil && result.bid == nil {
			return nil, &errortypes.NoBid{Reason: string(auction.NoBidNoFill)}
		}
		return result.bid, result.err
	case <-ctx.Done():
		return nil, &errortypes.Timeout{Message: fmt.Sprintf("adapter %s did not answer in time: %v", entry.Name, ctx.Err())}
	}
}

func (e *exchange) recoverSafely(adapter string, r *auction.BidOpportunity, inner func(), chResult chan<- adapterResult) func() {
	return func() {
		defer func() {
			if rec := recover(); rec != nil {
				glog.Errorf("Auction recovered panic from adapter %s: %v. Request id: %s, Placement id: %s, Stack trace is: %v",
					adapter, rec, r.RequestID, r.PlacementID, string(debug.Stack()))
				e.me.RecordAdapterPanic(adapter)
				sentry.CurrentHub().Recover(rec)
				// Let the auction know that there is no bid here
				chResult <- adapterResult{err: fmt.Errorf("adapter %s panicked: %v", adapter, rec)}
			}
		}()
		inner()
	}
}

func noBidOutcome(adapter string, reason auction.NoBidReason) auction.Outcome {
	return auction.Outcome{NoBid: &auction.NoBid{AdapterName: adapter, Reason: reason}}
}

func outcomeToMetric(o auction.Outcome) metrics.AdapterOutcome {
	if o.Bid != nil {
		return metrics.AdapterOutcomeBid
	}
	return metrics.AdapterOutcomeFromReason(o.NoBid.Reason)
}
