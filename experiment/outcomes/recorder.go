package outcomes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
)

const writeTimeout = 5 * time.Second

// Store persists a batch of records in a single bulk write.
type Store interface {
	Write(ctx context.Context, records []Record) error
	Close() error
}

// Recorder queues records in a bounded buffer and flushes them to a Store when either the batch
// size or the flush interval is reached. It never blocks the caller.
type Recorder struct {
	ch       chan Record
	endCh    chan struct{}
	doneCh   chan struct{}
	ticker   *clock.Ticker
	store    Store
	maxBatch int
	maxBytes int
	filter   *vm.Program
	me       metrics.MetricsEngine
	clock    clock.Clock

	closeOnce sync.Once
}

func NewRecorder(cfg config.Outcomes, store Store, clk clock.Clock, me metrics.MetricsEngine) (*Recorder, error) {
	if clk == nil {
		clk = clock.New()
	}
	r := &Recorder{
		ch:       make(chan Record, cfg.MaxQueueSize),
		endCh:    make(chan struct{}),
		doneCh:   make(chan struct{}),
		store:    store,
		maxBatch: cfg.MaxBatchSize,
		maxBytes: cfg.MaxPayloadBytes(),
		me:       me,
		clock:    clk,
	}
	if cfg.Filter != "" {
		program, err := expr.Compile(cfg.Filter, expr.Env(Record{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("outcome filter: %v", err)
		}
		r.filter = program
	}
	r.ticker = clk.Ticker(cfg.FlushInterval())

	go r.start()
	return r, nil
}

// Record prepares and queues rec. It is dropped when the queue is full or the filter rejects it.
func (r *Recorder) Record(rec Record) {
	if r.filter != nil {
		out, err := expr.Run(r.filter, rec)
		if err != nil {
			glog.Warningf("outcome filter failed for request %s: %v", rec.RequestID, err)
		} else if keep, ok := out.(bool); ok && !keep {
			return
		}
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now().UTC()
	}
	if rec.Snapshots != nil {
		rec.Candidates = EncodeCandidates(rec.Snapshots, r.maxBytes)
		rec.Snapshots = nil
	} else {
		rec.Candidates = TruncateMetadata(rec.Candidates, r.maxBytes)
	}
	rec.Metadata = TruncateMetadata(rec.Metadata, r.maxBytes)

	select {
	case r.ch <- rec:
	default:
		r.me.RecordOutcomeDropped(metrics.OutcomeDropQueueFull, 1)
	}
}

// Close flushes whatever is queued and closes the store.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.endCh)
		<-r.doneCh
		if err := r.store.Close(); err != nil {
			glog.Warningf("closing outcome store: %v", err)
		}
	})
}

func (r *Recorder) start() {
	defer close(r.doneCh)
	defer r.ticker.Stop()

	batch := make([]Record, 0, r.maxBatch)
	for {
		select {
		case <-r.endCh:
			for {
				select {
				case rec := <-r.ch:
					batch = append(batch, rec)
					if len(batch) >= r.maxBatch {
						batch = r.flush(batch)
					}
				default:
					r.flush(batch)
					return
				}
			}

		case rec := <-r.ch:
			batch = append(batch, rec)
			if len(batch) >= r.maxBatch {
				batch = r.flush(batch)
			}

		case <-r.ticker.C:
			batch = r.flush(batch)
		}
	}
}

// flush writes the batch and returns an empty slice to reuse. A failed batch is dropped.
func (r *Recorder) flush(batch []Record) []Record {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.Write(ctx, batch); err != nil {
		glog.Warningf("dropping %d experiment outcome records: %v", len(batch), err)
		r.me.RecordOutcomeFlush(len(batch), false)
		r.me.RecordOutcomeDropped(metrics.OutcomeDropWriteFailed, len(batch))
	} else {
		r.me.RecordOutcomeFlush(len(batch), true)
	}
	return make([]Record, 0, r.maxBatch)
}
