package statestore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aerospike/aerospike-client-go"
	"github.com/aerospike/aerospike-client-go/types"

	"github.com/rivalapexmediation/auction-server/config"
)

const (
	valueBin   = "v"
	counterBin = "n"

	defaultAerospikeTimeout = 50 * time.Millisecond
)

// aerospikeClient is the subset of *aerospike.Client the store needs.
type aerospikeClient interface {
	Get(policy *aerospike.BasePolicy, key *aerospike.Key, binNames ...string) (*aerospike.Record, error)
	PutBins(policy *aerospike.WritePolicy, key *aerospike.Key, bins ...*aerospike.Bin) error
	Operate(policy *aerospike.WritePolicy, key *aerospike.Key, operations ...*aerospike.Operation) (*aerospike.Record, error)
	Delete(policy *aerospike.WritePolicy, key *aerospike.Key) (bool, error)
	Close()
}

// AerospikeStore keeps values in one bin and counters in another so Incr is a single
// server side operation. Every command, retries included, is bounded by timeout.
type AerospikeStore struct {
	client    aerospikeClient
	timeout   time.Duration
	namespace string
	set       string
	prefix    string
}

// NewAerospikeStore connects to the configured cluster.
func NewAerospikeStore(cfg config.Aerospike, prefix string) (*AerospikeStore, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("state_store.aerospike.hosts is required")
	}
	hosts := make([]*aerospike.Host, len(cfg.Hosts))
	for i, h := range cfg.Hosts {
		hosts[i] = aerospike.NewHost(h, cfg.Port)
	}
	policy := aerospike.NewClientPolicy()
	if cfg.TimeoutMs > 0 {
		policy.Timeout = cfg.Timeout()
	}
	client, err := aerospike.NewClientWithPolicyAndHost(policy, hosts...)
	if err != nil {
		return nil, fmt.Errorf("aerospike connect failed: %w", err)
	}
	return newAerospikeStore(client, cfg.Timeout(), cfg.Namespace, cfg.Set, prefix), nil
}

func newAerospikeStore(client aerospikeClient, timeout time.Duration, namespace, set, prefix string) *AerospikeStore {
	if timeout <= 0 {
		timeout = defaultAerospikeTimeout
	}
	return &AerospikeStore{
		client:    client,
		timeout:   timeout,
		namespace: namespace,
		set:       set,
		prefix:    prefix,
	}
}

func (s *AerospikeStore) readPolicy() *aerospike.BasePolicy {
	policy := aerospike.NewPolicy()
	policy.TotalTimeout = s.timeout
	policy.SocketTimeout = s.timeout
	return policy
}

func (s *AerospikeStore) writePolicy(expiration uint32) *aerospike.WritePolicy {
	policy := aerospike.NewWritePolicy(0, expiration)
	policy.TotalTimeout = s.timeout
	policy.SocketTimeout = s.timeout
	return policy
}

func (s *AerospikeStore) key(k string) (*aerospike.Key, error) {
	return aerospike.NewKey(s.namespace, s.set, s.prefix+k)
}

func (s *AerospikeStore) Get(_ context.Context, key string) ([]byte, error) {
	asKey, err := s.key(key)
	if err != nil {
		return nil, err
	}
	rec, err := s.client.Get(s.readPolicy(), asKey)
	if err != nil {
		if hasResultCode(err, types.KEY_NOT_FOUND_ERROR) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("aerospike get failed: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if value, ok := rec.Bins[valueBin].([]byte); ok {
		return value, nil
	}
	if n, ok := rec.Bins[counterBin].(int); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return nil, ErrNotFound
}

func (s *AerospikeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	asKey, err := s.key(key)
	if err != nil {
		return err
	}
	policy := s.writePolicy(expiration(ttl))
	policy.RecordExistsAction = aerospike.REPLACE
	if err := s.client.PutBins(policy, asKey, aerospike.NewBin(valueBin, value)); err != nil {
		return fmt.Errorf("aerospike put failed: %w", err)
	}
	return nil
}

func (s *AerospikeStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	asKey, err := s.key(key)
	if err != nil {
		return false, err
	}
	policy := s.writePolicy(expiration(ttl))
	policy.RecordExistsAction = aerospike.CREATE_ONLY
	if err := s.client.PutBins(policy, asKey, aerospike.NewBin(valueBin, value)); err != nil {
		if hasResultCode(err, types.KEY_EXISTS_ERROR) {
			return false, nil
		}
		return false, fmt.Errorf("aerospike setnx failed: %w", err)
	}
	return true, nil
}

func (s *AerospikeStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	asKey, err := s.key(key)
	if err != nil {
		return 0, err
	}
	policy := s.writePolicy(expiration(ttl))
	rec, err := s.client.Operate(policy, asKey,
		aerospike.AddOp(aerospike.NewBin(counterBin, 1)),
		aerospike.GetOpForBin(counterBin),
	)
	if err != nil {
		return 0, fmt.Errorf("aerospike incr failed: %w", err)
	}
	n, ok := rec.Bins[counterBin].(int)
	if !ok {
		return 0, fmt.Errorf("aerospike incr returned %v", rec.Bins[counterBin])
	}
	return int64(n), nil
}

func (s *AerospikeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		asKey, err := s.key(k)
		if err != nil {
			return err
		}
		if _, err := s.client.Delete(s.writePolicy(aerospike.TTLServerDefault), asKey); err != nil {
			return fmt.Errorf("aerospike delete failed: %w", err)
		}
	}
	return nil
}

// Close releases the cluster connections.
func (s *AerospikeStore) Close() error {
	s.client.Close()
	return nil
}

// expiration converts ttl to whole seconds, rounding up. A non-positive ttl never expires.
func expiration(ttl time.Duration) uint32 {
	if ttl <= 0 {
		return aerospike.TTLDontExpire
	}
	seconds := math.Ceil(ttl.Seconds())
	if seconds >= math.MaxUint32 {
		return aerospike.TTLDontExpire
	}
	return uint32(seconds)
}

func hasResultCode(err error, code types.ResultCode) bool {
	ae, ok := err.(types.AerospikeError)
	return ok && ae.ResultCode() == code
}
