package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/statestore"
)

var enabled = config.Idempotency{Enabled: true, TTLSeconds: 30}

func decision(landscape string) *auction.Decision {
	return &auction.Decision{
		Success:     true,
		LandscapeID: landscape,
		Response: &auction.Response{
			RequestID:   "r1",
			LandscapeID: landscape,
			BidID:       "bid-1",
			Adapter:     "a",
			CPM:         1.5,
			Currency:    "USD",
			TTLSeconds:  300,
			CreativeURL: "https://d/x?token=t",
			Payload:     json.RawMessage(`{"markup":"<div/>"}`),
		},
		LatencyMs: 42,
	}
}

func TestReplayIsByteIdentical(t *testing.T) {
	for _, localSize := range []string{"0", "512KB"} {
		cfg := enabled
		cfg.LocalCacheSize = localSize
		c := New(cfg, statestore.NewMemoryStore(time.Minute))
		ctx := context.Background()

		_, hit := c.Get(ctx, "r1")
		assert.False(t, hit)

		original := decision("land-1")
		stored := c.Put(ctx, "r1", original)
		assert.Equal(t, original, stored)

		replay, hit := c.Get(ctx, "r1")
		require.True(t, hit)
		a, _ := json.Marshal(original)
		b, _ := json.Marshal(replay)
		assert.Equal(t, string(a), string(b))
	}
}

func TestFirstWriterWins(t *testing.T) {
	c := New(enabled, statestore.NewMemoryStore(time.Minute))
	ctx := context.Background()

	first := c.Put(ctx, "r1", decision("land-1"))
	second := c.Put(ctx, "r1", decision("land-2"))

	assert.Equal(t, "land-1", first.LandscapeID)
	assert.Equal(t, "land-1", second.LandscapeID, "a late writer gets the stored decision back")

	got, _ := c.Get(ctx, "r1")
	assert.Equal(t, "land-1", got.LandscapeID)
}

func TestSharedAcrossInstances(t *testing.T) {
	store := statestore.NewMemoryStore(time.Minute)
	ctx := context.Background()
	New(enabled, store).Put(ctx, "r1", decision("land-1"))

	got, hit := New(enabled, store).Get(ctx, "r1")
	require.True(t, hit)
	assert.Equal(t, "land-1", got.LandscapeID)
}

func TestExpiry(t *testing.T) {
	store := statestore.NewMemoryStore(time.Minute)
	clk := clock.NewMock()
	c := newCache(config.Idempotency{Enabled: true, TTLSeconds: 2}, store, clk)
	ctx := context.Background()

	c.Put(ctx, "r1", decision("land-1"))
	clk.Add(1999 * time.Millisecond)
	_, hit := c.Get(ctx, "r1")
	assert.True(t, hit)

	clk.Add(time.Millisecond)
	_, hit = c.Get(ctx, "r1")
	assert.False(t, hit, "the writer's expiry applies even while the store still holds the entry")
}

func TestLocalCacheKeepsWriterExpiry(t *testing.T) {
	testCases := []struct {
		description string
		ttlSeconds  int
		readAt      time.Duration
		rewriteAt   time.Duration
	}{
		{
			description: "Read shortly before expiry",
			ttlSeconds:  2,
			readAt:      1500 * time.Millisecond,
			rewriteAt:   3 * time.Second,
		},
		{
			description: "Read right after the write",
			ttlSeconds:  10,
			readAt:      0,
			rewriteAt:   11 * time.Second,
		},
	}

	for _, test := range testCases {
		store := statestore.NewMemoryStore(time.Minute)
		clk := clock.NewMock()
		cfg := config.Idempotency{Enabled: true, TTLSeconds: test.ttlSeconds, LocalCacheSize: "512KB"}
		writer := newCache(cfg, store, clk)
		reader := newCache(cfg, store, clk)
		ctx := context.Background()

		writer.Put(ctx, "r1", decision("land-1"))

		clk.Add(test.readAt)
		got, hit := reader.Get(ctx, "r1")
		require.True(t, hit, test.description)
		assert.Equal(t, "land-1", got.LandscapeID, test.description)

		// The shared entry expires and a new auction for the same request id is stored.
		clk.Add(test.rewriteAt - test.readAt)
		require.NoError(t, store.Del(ctx, keyPrefix+"r1"), test.description)
		freshWriter := newCache(cfg, store, clk)
		freshWriter.Put(ctx, "r1", decision("land-2"))

		got, hit = reader.Get(ctx, "r1")
		require.True(t, hit, test.description)
		assert.Equal(t, "land-2", got.LandscapeID, "%s: a process never outlives the stored entry", test.description)
	}
}

func TestDisabled(t *testing.T) {
	c := New(config.Idempotency{}, statestore.NewMemoryStore(time.Minute))
	ctx := context.Background()
	c.Put(ctx, "r1", decision("land-1"))
	_, hit := c.Get(ctx, "r1")
	assert.False(t, hit)
	assert.False(t, c.Enabled())
}

type failingStore struct {
	statestore.Store
}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("timeout")
}

func (failingStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errors.New("timeout")
}

func TestFailsSilent(t *testing.T) {
	c := New(enabled, failingStore{})
	ctx := context.Background()

	d := decision("land-1")
	assert.Equal(t, d, c.Put(ctx, "r1", d))
	_, hit := c.Get(ctx, "r1")
	assert.False(t, hit)
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	store := statestore.NewMemoryStore(time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, keyPrefix+"r1", []byte("{not json"), time.Minute))

	_, hit := New(enabled, store).Get(ctx, "r1")
	assert.False(t, hit)
}
