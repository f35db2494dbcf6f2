// Package breaker gates calls to unhealthy adapters. State lives in a shared statestore.Store so
// every process sees the same breaker, and any store failure degrades to allowing the call.
package breaker

import (
	"context"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/statestore"
)

// State ttls are a multiple of the cooldown so that an idle adapter eventually forgets its history.
const stateTTLMultiplier = 10

// Breaker is a consecutive-failure circuit breaker keyed by adapter name.
//
//	closed    -> open       after failureThreshold consecutive failures
//	open      -> half-open  once cooldown has elapsed; exactly one trial call is allowed
//	half-open -> closed     on a successful trial
//	half-open -> open       on a failed trial
type Breaker struct {
	store     statestore.Store
	clock     clock.Clock
	enabled   bool
	threshold int64
	cooldown  time.Duration
}

func New(cfg config.CircuitBreaker, store statestore.Store, clk clock.Clock) *Breaker {
	return &Breaker{
		store:     store,
		clock:     clk,
		enabled:   cfg.Enabled,
		threshold: int64(cfg.FailureThreshold),
		cooldown:  cfg.Cooldown(),
	}
}

func failsKey(adapter string) string     { return "cb:" + adapter + ":fails" }
func openUntilKey(adapter string) string { return "cb:" + adapter + ":open_until" }
func trialKey(adapter string) string     { return "cb:" + adapter + ":trial" }

func (b *Breaker) stateTTL() time.Duration {
	return b.cooldown * stateTTLMultiplier
}

// Allow reports whether adapter may be called now.
func (b *Breaker) Allow(ctx context.Context, adapter string) bool {
	if !b.enabled {
		return true
	}

	raw, err := b.store.Get(ctx, openUntilKey(adapter))
	if err == statestore.ErrNotFound {
		return true
	}
	if err != nil {
		glog.Warningf("circuit breaker state for %s unavailable, allowing call: %v", adapter, err)
		return true
	}

	until, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		glog.Warningf("circuit breaker state for %s is corrupt, allowing call: %v", adapter, err)
		return true
	}
	if b.clock.Now().UnixMilli() < until {
		return false
	}

	won, err := b.store.SetNX(ctx, trialKey(adapter), []byte("1"), b.cooldown)
	if err != nil {
		glog.Warningf("circuit breaker trial for %s could not be claimed, allowing call: %v", adapter, err)
		return true
	}
	return won
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess(ctx context.Context, adapter string) {
	if !b.enabled {
		return
	}
	if err := b.store.Del(ctx, failsKey(adapter), openUntilKey(adapter), trialKey(adapter)); err != nil {
		glog.Warningf("circuit breaker reset for %s failed: %v", adapter, err)
	}
}

// RecordFailure counts a failure and opens the breaker once the threshold is reached. A failed
// half-open trial reopens it immediately.
func (b *Breaker) RecordFailure(ctx context.Context, adapter string) {
	if !b.enabled {
		return
	}
	n, err := b.store.Incr(ctx, failsKey(adapter), b.stateTTL())
	if err != nil {
		glog.Warningf("circuit breaker failure for %s not recorded: %v", adapter, err)
		return
	}
	if n < b.threshold && !b.trialClaimed(ctx, adapter) {
		return
	}
	b.open(ctx, adapter)
}

func (b *Breaker) trialClaimed(ctx context.Context, adapter string) bool {
	_, err := b.store.Get(ctx, trialKey(adapter))
	return err == nil
}

func (b *Breaker) open(ctx context.Context, adapter string) {
	until := b.clock.Now().Add(b.cooldown).UnixMilli()
	if err := b.store.Set(ctx, openUntilKey(adapter), []byte(strconv.FormatInt(until, 10)), b.stateTTL()); err != nil {
		glog.Warningf("circuit breaker for %s could not be opened: %v", adapter, err)
		return
	}
	if err := b.store.Del(ctx, trialKey(adapter)); err != nil {
		glog.Warningf("circuit breaker trial for %s could not be released: %v", adapter, err)
	}
	glog.Infof("circuit breaker opened for %s until %s", adapter, time.UnixMilli(until).UTC().Format(time.RFC3339))
}
