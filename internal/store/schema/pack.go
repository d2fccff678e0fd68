package schema

import "time"

// Pack represents the packs table - the denormalized catalog row for a
// sellable pack. TotalStock and AvailableStock are maintained outside the
// shard write path and back the fast status mode; the shard rows remain
// the source of truth for claims.
type Pack struct {
	// ID is the external pack identifier (e.g., "launch-day-pack")
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Name is the display name of the pack
	Name string `gorm:"column:name;not null;type:text"`
	// TotalStock is the cumulative number of tokens ever stocked for this pack
	TotalStock int `gorm:"column:total_stock;not null;default:0"`
	// AvailableStock is the denormalized remaining count, decremented on claim
	AvailableStock int `gorm:"column:available_stock;not null;default:0"`
	// CreatedAt is the timestamp when this pack was first stocked
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// UpdatedAt is the timestamp of the last restock or claim decrement
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Pack model
func (Pack) TableName() string {
	return "packs"
}
