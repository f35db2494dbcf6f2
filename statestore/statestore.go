package statestore

import (
	"fmt"
	"time"

	"github.com/rivalapexmediation/auction-server/config"
)

const keyPrefix = "auction:"

// New builds the Store selected by cfg.
func New(cfg config.StateStore) (Store, error) {
	switch cfg.Type {
	case config.StateStoreRedis:
		return NewRedisStore(cfg.Redis, keyPrefix)
	case config.StateStoreAerospike:
		return NewAerospikeStore(cfg.Aerospike, keyPrefix)
	case config.StateStoreMemory, "":
		return NewMemoryStore(time.Minute), nil
	}
	return nil, fmt.Errorf("unknown state store type %q", cfg.Type)
}
