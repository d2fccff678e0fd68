package schema

import (
	"time"

	"gorm.io/datatypes"
)

// UserLedger represents the user_ledgers table - one row per user holding
// their owned packs and opened cards as a JSON document. Edits are
// serialized per user above the store, so the row is replaced whole.
type UserLedger struct {
	// UserID is the owning user
	UserID string `gorm:"column:user_id;primaryKey;type:text"`
	// Inventory is the JSON document {"packs": {...}, "cards": [...]}
	Inventory datatypes.JSON `gorm:"column:inventory;type:jsonb;not null;default:'{}'"`
	// UpdatedAt is the timestamp of the last inventory change
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the UserLedger model
func (UserLedger) TableName() string {
	return "user_ledgers"
}
