package domain

import "time"

// ShardStatus is a read-only snapshot of one shard's inventory state.
type ShardStatus struct {
	PackID          string `json:"packId"`
	ShardIndex      int    `json:"shardIndex"`
	TokensAvailable int    `json:"tokensAvailable"`
	TotalTokens     int    `json:"totalTokens"`
}

// PackStatus is the aggregated inventory view of a pack, computed either
// by live fan-out over all shards or from the denormalized aggregate.
type PackStatus struct {
	PackID         string `json:"packId"`
	TotalStock     int    `json:"totalStock"`
	TotalAvailable int    `json:"totalAvailable"`
	SoldOut        bool   `json:"soldOut"`
}

// CardItem is a single card in a user's inventory.
type CardItem struct {
	ID      string `json:"Id"`
	Variant string `json:"Variant"`
	Name    string `json:"Name"`
}

// Inventory is the per-user ledger of owned packs and cards.
// Packs maps pack ID to owned quantity.
type Inventory struct {
	Packs map[string]int `json:"packs"`
	Cards []CardItem     `json:"cards"`
}

// NewInventory returns an empty inventory with a non-nil pack map.
func NewInventory() Inventory {
	return Inventory{Packs: map[string]int{}, Cards: []CardItem{}}
}

// PackDelta is a (packID, quantity) pair used by inventory edits.
type PackDelta struct {
	PackID   string
	Quantity int
}

// InventoryAdd describes additions to a user's inventory.
type InventoryAdd struct {
	Cards []CardItem
	Packs []PackDelta
}

// InventoryRemove describes removals from a user's inventory. Cards are
// removed by ID (first match); pack quantities are decremented and the
// entry dropped once it reaches zero.
type InventoryRemove struct {
	Cards []string
	Packs []PackDelta
}

// InventoryChange is a combined add/remove edit applied atomically to one
// user's ledger.
type InventoryChange struct {
	Add    *InventoryAdd
	Remove *InventoryRemove
}

// Empty reports whether the change carries no operations.
func (c InventoryChange) Empty() bool {
	return c.Add == nil && c.Remove == nil
}

// ClaimEvent is the message published after a successful claim.
type ClaimEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	PackID    string    `json:"pack_id"`
	ShardKey  string    `json:"shard_key"`
	Timestamp time.Time `json:"timestamp"`
}
