package shard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boosterlab/packdrop/internal/domain"
)

// State is the durable record of one shard. ClaimedBy maps user ID to the
// unix-millisecond timestamp of the claim.
//
// Invariants, held at all times:
//   - 0 <= TokensAvailable <= TotalTokens
//   - len(ClaimedBy) == TotalTokens - TokensAvailable
type State struct {
	PackID          string
	ShardIndex      int
	TokensAvailable int
	TotalTokens     int
	ClaimedBy       map[string]int64
}

// StateStore persists shard state. Load returns (nil, nil) for a shard
// that has never been written.
type StateStore interface {
	LoadShardState(ctx context.Context, shardKey string) (*State, error)
	SaveShardState(ctx context.Context, shardKey string, state *State) error
}

// Actor owns one shard's state and serializes every operation against it.
// The mutex is the system's only concurrency control for inventory
// decrement: all correctness rests on one-operation-at-a-time per shard,
// not on optimistic checks. Mutating calls persist through the StateStore
// before acknowledging, so the observable state survives a restart.
type Actor struct {
	mu       sync.Mutex
	key      string
	store    StateStore
	hydrated bool
	state    State
}

// NewActor creates an actor for the given shard key. State is hydrated
// lazily from the store on first use.
func NewActor(key string, store StateStore) *Actor {
	return &Actor{key: key, store: store}
}

// hydrate loads persisted state once. Callers must hold a.mu.
func (a *Actor) hydrate(ctx context.Context) error {
	if a.hydrated {
		return nil
	}

	state, err := a.store.LoadShardState(ctx, a.key)
	if err != nil {
		return fmt.Errorf("failed to load shard state: %w", err)
	}
	if state != nil {
		a.state = *state
	}
	if a.state.ClaimedBy == nil {
		a.state.ClaimedBy = map[string]int64{}
	}
	a.hydrated = true
	return nil
}

// persist writes the current state durably. Callers must hold a.mu.
func (a *Actor) persist(ctx context.Context) error {
	state := a.state
	if err := a.store.SaveShardState(ctx, a.key, &state); err != nil {
		return fmt.Errorf("failed to persist shard state: %w", err)
	}
	return nil
}

// Initialize sets the shard to a fresh state for the given pack,
// discarding whatever it held before. This is the explicit provisioning /
// reprovisioning operation; it is destructive by design and must only be
// reached through the restock planner.
func (a *Actor) Initialize(ctx context.Context, packID string, shardIndex int, tokens int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrate(ctx); err != nil {
		return err
	}

	prev := a.state
	a.state = State{
		PackID:          packID,
		ShardIndex:      shardIndex,
		TokensAvailable: tokens,
		TotalTokens:     tokens,
		ClaimedBy:       map[string]int64{},
	}
	if err := a.persist(ctx); err != nil {
		a.state = prev
		return err
	}
	return nil
}

// Claim takes one token for the user. It fails with domain.ErrShardEmpty
// when no tokens remain and domain.ErrAlreadyClaimed when the user already
// holds a claim on this shard.
func (a *Actor) Claim(ctx context.Context, userID string, timestamp time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrate(ctx); err != nil {
		return err
	}

	if a.state.TokensAvailable <= 0 {
		return domain.ErrShardEmpty
	}
	if _, ok := a.state.ClaimedBy[userID]; ok {
		return domain.ErrAlreadyClaimed
	}

	a.state.TokensAvailable--
	a.state.ClaimedBy[userID] = timestamp.UnixMilli()

	if err := a.persist(ctx); err != nil {
		a.state.TokensAvailable++
		delete(a.state.ClaimedBy, userID)
		return err
	}
	return nil
}

// Refund releases the user's claim on this shard, returning the token to
// the pool. It reports false, without touching state, when the user holds
// no claim here.
func (a *Actor) Refund(ctx context.Context, userID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrate(ctx); err != nil {
		return false, err
	}

	ts, ok := a.state.ClaimedBy[userID]
	if !ok {
		return false, nil
	}

	delete(a.state.ClaimedBy, userID)
	a.state.TokensAvailable++

	if err := a.persist(ctx); err != nil {
		a.state.ClaimedBy[userID] = ts
		a.state.TokensAvailable--
		return false, err
	}
	return true, nil
}

// Restock adds tokens to the shard. Both the total and the available
// count grow by the delta; this is additive, not a target-setting
// operation, so blind retries double-count.
func (a *Actor) Restock(ctx context.Context, tokens int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrate(ctx); err != nil {
		return err
	}

	a.state.TokensAvailable += tokens
	a.state.TotalTokens += tokens

	if err := a.persist(ctx); err != nil {
		a.state.TokensAvailable -= tokens
		a.state.TotalTokens -= tokens
		return err
	}
	return nil
}

// Status returns a read-only snapshot of the shard. A shard that has never
// been initialized reports domain.ErrShardNotProvisioned, which is the
// distinguishable signal the restock planner keys on.
func (a *Actor) Status(ctx context.Context) (domain.ShardStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrate(ctx); err != nil {
		return domain.ShardStatus{}, err
	}

	if a.state.PackID == "" && a.state.TotalTokens == 0 {
		return domain.ShardStatus{}, domain.ErrShardNotProvisioned
	}

	return domain.ShardStatus{
		PackID:          a.state.PackID,
		ShardIndex:      a.state.ShardIndex,
		TokensAvailable: a.state.TokensAvailable,
		TotalTokens:     a.state.TotalTokens,
	}, nil
}
