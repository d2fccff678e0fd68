package schema

import (
	"time"

	"gorm.io/datatypes"
)

// PackShard represents the pack_shards table - the durable state of one
// shard actor. Each row is written whole before the owning actor
// acknowledges a mutation, so a row always reflects a consistent snapshot.
type PackShard struct {
	// ShardKey is the durable shard identifier ("pack:<id>:shard:<n>")
	ShardKey string `gorm:"column:shard_key;primaryKey;type:text"`
	// PackID is the pack this shard currently holds stock for
	PackID string `gorm:"column:pack_id;not null;type:text;index:idx_pack_shards_pack_id"`
	// ShardIndex is the shard's position in the pack's shard set
	ShardIndex int `gorm:"column:shard_index;not null"`
	// TokensAvailable is the number of unclaimed tokens in this shard
	TokensAvailable int `gorm:"column:tokens_available;not null;default:0"`
	// TotalTokens is the cumulative number of tokens ever assigned here
	TotalTokens int `gorm:"column:total_tokens;not null;default:0"`
	// ClaimedBy maps user IDs to their claim timestamps (unix millis)
	ClaimedBy datatypes.JSON `gorm:"column:claimed_by;type:jsonb;not null;default:'{}'"`
	// UpdatedAt is the timestamp of the last persisted mutation
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the PackShard model
func (PackShard) TableName() string {
	return "pack_shards"
}
