// Package engine drives the sharded inventory: it routes claims across
// shard actors with bounded retries, spreads restocks over the shard set,
// and aggregates pack status by live fan-out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/boosterlab/packdrop/internal/domain"
	"github.com/boosterlab/packdrop/internal/logger"
	"github.com/boosterlab/packdrop/internal/shard"
)

// Config holds engine tuning knobs.
type Config struct {
	// ShardCount is the fixed number of shards per pack.
	ShardCount int
	// MaxClaimAttempts bounds one claim's retry chain.
	MaxClaimAttempts int
}

// Engine owns the shard actors for every pack this process serves.
// Actors are created lazily and hydrate their state from the StateStore,
// so a restarted process picks up exactly where it left off.
type Engine struct {
	config Config
	store  shard.StateStore

	mu     sync.RWMutex
	actors map[string]*shard.Actor

	// pool bounds the accurate-status fan-out to ShardCount concurrent
	// reads.
	pool pond.ResultPool[domain.ShardStatus]
}

// New creates an engine backed by the given shard state store.
func New(cfg Config, store shard.StateStore) *Engine {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = domain.ShardCount
	}
	if cfg.MaxClaimAttempts <= 0 {
		cfg.MaxClaimAttempts = domain.MaxClaimAttempts
	}

	return &Engine{
		config: cfg,
		store:  store,
		actors: make(map[string]*shard.Actor),
		pool: pond.NewResultPool[domain.ShardStatus](
			cfg.ShardCount,
			pond.WithQueueSize(cfg.ShardCount*2),
		),
	}
}

// actor returns the actor for a shard key, creating it on first use.
func (e *Engine) actor(key string) *shard.Actor {
	e.mu.RLock()
	a, ok := e.actors[key]
	e.mu.RUnlock()
	if ok {
		return a
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.actors[key]; ok {
		return a
	}
	a = shard.NewActor(key, e.store)
	e.actors[key] = a
	return a
}

// Claim walks the routing chain for (user, pack) and takes one token from
// the first shard that grants it. Each failed attempt, whatever the
// cause, advances to the next candidate; after MaxClaimAttempts the claim
// is reported as domain.ErrPackSoldOut even if untried shards still hold
// tokens. On success the shard key that granted the token is returned.
func (e *Engine) Claim(ctx context.Context, userID, packID string, now time.Time) (string, error) {
	index := shard.PrimaryIndex(userID, packID, e.config.ShardCount)

	for attempt := 0; attempt < e.config.MaxClaimAttempts; attempt++ {
		key := shard.Key(packID, index)
		err := e.actor(key).Claim(ctx, userID, now)
		if err == nil {
			return key, nil
		}

		if !errors.Is(err, domain.ErrShardEmpty) && !errors.Is(err, domain.ErrAlreadyClaimed) {
			// Unreachable or failing shard: ends this attempt, no
			// in-place retry.
			logger.WarnCtx(ctx, "Shard claim attempt failed",
				zap.String("shard_key", key),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}

		index = shard.NextIndex(index, attempt+1, userID, e.config.ShardCount)
	}

	return "", domain.ErrPackSoldOut
}

// Refund releases the user's claim on a specific shard of a pack. It
// reports false when the user held no claim there.
func (e *Engine) Refund(ctx context.Context, userID, packID string, shardIndex int) (bool, error) {
	return e.actor(shard.Key(packID, shardIndex)).Refund(ctx, userID)
}

// Restock spreads a stock delta across the shard set and applies it one
// shard at a time. A shard already holding the target pack is restocked
// additively; a shard that reports the never-provisioned signal, or that
// holds a different pack, is (re)initialized for this pack. Any other
// probe error aborts the restock; shards written so far keep their new
// tokens, so the operation is not atomic and is not blindly retryable.
// It returns the number of shards that received tokens.
func (e *Engine) Restock(ctx context.Context, packID string, stock int) (int, error) {
	distribution := shard.DistributeTokens(stock, e.config.ShardCount)

	touched := 0
	for index, tokens := range distribution {
		if tokens == 0 {
			continue
		}

		key := shard.Key(packID, index)
		a := e.actor(key)

		status, err := a.Status(ctx)
		switch {
		case err == nil && status.PackID == packID:
			if err := a.Restock(ctx, tokens); err != nil {
				return touched, fmt.Errorf("failed to restock shard %s: %w", key, err)
			}
		case err == nil || errors.Is(err, domain.ErrShardNotProvisioned):
			// Fresh shard, or a shard left over from another pack:
			// provision it for this pack, discarding prior state.
			if err := a.Initialize(ctx, packID, index, tokens); err != nil {
				return touched, fmt.Errorf("failed to initialize shard %s: %w", key, err)
			}
		default:
			// A genuine probe failure must not trigger a destructive
			// reinitialize; surface it instead.
			return touched, fmt.Errorf("failed to probe shard %s: %w", key, err)
		}

		touched++
	}

	logger.InfoCtx(ctx, "Restocked pack across shards",
		zap.String("pack_id", packID),
		zap.Int("stock", stock),
		zap.Int("shards", touched),
	)
	return touched, nil
}

// Status computes a pack's aggregate inventory by reading every shard
// concurrently and joining all results. A shard that errors (including
// the never-provisioned case) contributes zero to both sums, biasing the
// answer toward under-counting, never over-counting.
func (e *Engine) Status(ctx context.Context, packID string) domain.PackStatus {
	tasks := make([]pond.Result[domain.ShardStatus], e.config.ShardCount)
	for index := 0; index < e.config.ShardCount; index++ {
		key := shard.Key(packID, index)
		a := e.actor(key)
		tasks[index] = e.pool.SubmitErr(func() (domain.ShardStatus, error) {
			return a.Status(ctx)
		})
	}

	result := domain.PackStatus{PackID: packID}
	for _, task := range tasks {
		status, err := task.Wait()
		if err != nil {
			continue
		}
		result.TotalAvailable += status.TokensAvailable
		result.TotalStock += status.TotalTokens
	}
	result.SoldOut = result.TotalAvailable == 0
	return result
}
