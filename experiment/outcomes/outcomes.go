package outcomes

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
)

// NewStore builds the durable store selected by configuration.
func NewStore(ctx context.Context, cfg config.OutcomeStore) (Store, error) {
	switch cfg.Type {
	case config.OutcomeStorePostgres, config.OutcomeStoreMySQL, config.OutcomeStoreSQLite:
		return NewSQLStore(ctx, cfg.Type, cfg.DSN, cfg.Table)
	case config.OutcomeStoreKafka:
		return NewKafkaStore(cfg.Brokers, cfg.Topic)
	default:
		return NoopStore{}, nil
	}
}

// New wires the recorder to its configured store. It returns nil when recording is disabled.
func New(ctx context.Context, cfg config.Outcomes, me metrics.MetricsEngine) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := NewStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	recorder, err := NewRecorder(cfg, store, clock.New(), me)
	if err != nil {
		store.Close()
		return nil, err
	}
	return recorder, nil
}
