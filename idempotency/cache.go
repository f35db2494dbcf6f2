// Package idempotency remembers the decision of every auction for a short window, keyed by the
// client supplied request id, so that client retries replay the original decision instead of
// running a new auction.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coocood/freecache"
	"github.com/golang/glog"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/statestore"
)

const keyPrefix = "idem:"

// entry is the stored form of a decision. ExpiresAt is fixed by the writer so every process
// stops replaying the decision at the same instant.
type entry struct {
	ExpiresAt int64           `json:"expiresAt"`
	Decision  json.RawMessage `json:"decision"`
}

// Cache never returns errors. A store failure reads as a miss and a failed write is dropped.
type Cache struct {
	enabled bool
	ttl     time.Duration
	store   statestore.Store
	local   *freecache.Cache
	clock   clock.Clock
}

func New(cfg config.Idempotency, store statestore.Store) *Cache {
	return newCache(cfg, store, clock.New())
}

func newCache(cfg config.Idempotency, store statestore.Store, clk clock.Clock) *Cache {
	c := &Cache{
		enabled: cfg.Enabled,
		ttl:     cfg.TTL(),
		store:   store,
		clock:   clk,
	}
	if size := cfg.LocalCacheBytes(); size > 0 {
		c.local = freecache.NewCache(size)
	}
	return c
}

func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get returns the decision previously stored for requestID.
func (c *Cache) Get(ctx context.Context, requestID string) (*auction.Decision, bool) {
	if !c.enabled || requestID == "" {
		return nil, false
	}

	if c.local != nil {
		if raw, err := c.local.Get([]byte(requestID)); err == nil {
			if e, ok := c.decode(requestID, raw); ok {
				if d, ok := decodeDecision(requestID, e); ok {
					return d, true
				}
			}
			c.local.Del([]byte(requestID))
		}
	}

	raw, err := c.store.Get(ctx, keyPrefix+requestID)
	if err != nil {
		if err != statestore.ErrNotFound {
			glog.Warningf("idempotency lookup for %s failed: %v", requestID, err)
		}
		return nil, false
	}
	e, ok := c.decode(requestID, raw)
	if !ok {
		return nil, false
	}
	d, ok := decodeDecision(requestID, e)
	if ok {
		c.remember(requestID, raw, e)
	}
	return d, ok
}

// Put stores d unless another writer got there first, and returns whichever decision is stored.
func (c *Cache) Put(ctx context.Context, requestID string, d *auction.Decision) *auction.Decision {
	if !c.enabled || requestID == "" || d == nil {
		return d
	}

	snapshot, err := json.Marshal(d)
	if err != nil {
		glog.Warningf("idempotency snapshot for %s could not be encoded: %v", requestID, err)
		return d
	}
	e := entry{
		ExpiresAt: c.clock.Now().Add(c.ttl).UnixMilli(),
		Decision:  snapshot,
	}
	raw, err := json.Marshal(e)
	if err != nil {
		glog.Warningf("idempotency entry for %s could not be encoded: %v", requestID, err)
		return d
	}

	written, err := c.store.SetNX(ctx, keyPrefix+requestID, raw, c.ttl)
	if err != nil {
		glog.Warningf("idempotency write for %s failed: %v", requestID, err)
		return d
	}
	if written {
		c.remember(requestID, raw, e)
		return d
	}

	if existing, ok := c.Get(ctx, requestID); ok {
		return existing
	}
	return d
}

// remember keeps raw in the local cache for the whole seconds left before e expires. An entry
// with less than a second left is not kept.
func (c *Cache) remember(requestID string, raw []byte, e entry) {
	if c.local == nil {
		return
	}
	remaining := time.UnixMilli(e.ExpiresAt).Sub(c.clock.Now())
	seconds := int(remaining / time.Second)
	if seconds < 1 {
		return
	}
	if err := c.local.Set([]byte(requestID), raw, seconds); err != nil {
		glog.Warningf("idempotency local cache rejected %s: %v", requestID, err)
	}
}

// decode reads an entry and reports whether it is still within its window.
func (c *Cache) decode(requestID string, raw []byte) (entry, bool) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || len(e.Decision) == 0 {
		glog.Warningf("idempotency snapshot for %s is corrupt: %v", requestID, err)
		return entry{}, false
	}
	if !c.clock.Now().Before(time.UnixMilli(e.ExpiresAt)) {
		return entry{}, false
	}
	return e, true
}

func decodeDecision(requestID string, e entry) (*auction.Decision, bool) {
	var d auction.Decision
	if err := json.Unmarshal(e.Decision, &d); err != nil {
		glog.Warningf("idempotency snapshot for %s is corrupt: %v", requestID, err)
		return nil, false
	}
	return &d, true
}
