// Package ledger manages per-user inventories of owned packs and opened
// cards. All writes for one user are serialized behind a per-user lock,
// and the full document is persisted before a call returns.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/boosterlab/packdrop/internal/domain"
	"github.com/boosterlab/packdrop/internal/store"
)

// Service serializes inventory edits per user. Reads go straight to the
// store; a read concurrent with an edit sees either the old or the new
// document, never a partial one, because the store writes the row whole.
type Service struct {
	store store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a ledger service backed by the given store.
func NewService(s store.Store) *Service {
	return &Service{
		store: s,
		locks: make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing writes for a user, creating it on
// first use. Locks are never evicted; one mutex per user seen since boot.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// load fetches the user's inventory, defaulting to empty for a user with
// no ledger row yet.
func (s *Service) load(ctx context.Context, userID string) (domain.Inventory, error) {
	inv, err := s.store.GetUserLedger(ctx, userID)
	if err != nil {
		return domain.Inventory{}, err
	}
	if inv == nil {
		return domain.NewInventory(), nil
	}
	return *inv, nil
}

// Get returns the user's current inventory.
func (s *Service) Get(ctx context.Context, userID string) (domain.Inventory, error) {
	return s.load(ctx, userID)
}

// AddPack credits one unclaimed pack to the user's inventory.
func (s *Service) AddPack(ctx context.Context, userID, packID string) (domain.Inventory, error) {
	return s.Apply(ctx, userID, domain.InventoryChange{
		Add: &domain.InventoryAdd{
			Packs: []domain.PackDelta{{PackID: packID, Quantity: 1}},
		},
	})
}

// Apply performs a combined add/remove edit on the user's inventory.
// Removals run first: cards are removed by ID, dropping the first matching
// entry per requested ID, and pack quantities are decremented with the
// entry deleted once it reaches zero. Additions then append cards and
// credit pack quantities. Removing a card or pack the user does not hold
// is a silent no-op. The updated inventory is persisted before it is
// returned.
func (s *Service) Apply(ctx context.Context, userID string, change domain.InventoryChange) (domain.Inventory, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	inv, err := s.load(ctx, userID)
	if err != nil {
		return domain.Inventory{}, err
	}

	if change.Remove != nil {
		for _, cardID := range change.Remove.Cards {
			for i, card := range inv.Cards {
				if card.ID == cardID {
					inv.Cards = append(inv.Cards[:i], inv.Cards[i+1:]...)
					break
				}
			}
		}
		for _, delta := range change.Remove.Packs {
			if delta.Quantity <= 0 {
				continue
			}
			remaining := inv.Packs[delta.PackID] - delta.Quantity
			if remaining > 0 {
				inv.Packs[delta.PackID] = remaining
			} else {
				delete(inv.Packs, delta.PackID)
			}
		}
	}

	if change.Add != nil {
		inv.Cards = append(inv.Cards, change.Add.Cards...)
		for _, delta := range change.Add.Packs {
			if delta.Quantity <= 0 {
				continue
			}
			inv.Packs[delta.PackID] += delta.Quantity
		}
	}

	if err := s.store.SaveUserLedger(ctx, userID, &inv); err != nil {
		return domain.Inventory{}, fmt.Errorf("failed to persist inventory for %s: %w", userID, err)
	}

	return inv, nil
}
