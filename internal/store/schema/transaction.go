package schema

import "time"

// TransactionType classifies an audit trail row
type TransactionType string

const (
	// TransactionTypeClaim records a successful pack claim
	TransactionTypeClaim TransactionType = "claim"
	// TransactionTypeRestock records an admin restock
	TransactionTypeRestock TransactionType = "restock"
	// TransactionTypeRefund records a released claim
	TransactionTypeRefund TransactionType = "refund"
)

// Transaction represents the transactions table - the append-only audit
// trail of inventory movements. Rows are best-effort: a failed append never
// fails the operation it records.
type Transaction struct {
	// ID is the ULID assigned when the row is appended
	ID string `gorm:"column:id;primaryKey;type:text"`
	// UserID is the acting user, empty for admin restocks
	UserID string `gorm:"column:user_id;type:text;index:idx_transactions_user_id"`
	// PackID is the pack the movement touched
	PackID string `gorm:"column:pack_id;not null;type:text;index:idx_transactions_pack_id"`
	// Type classifies the movement (claim, restock, refund)
	Type TransactionType `gorm:"column:type;not null;type:text"`
	// ShardKey is the shard that granted the token, empty for restocks
	ShardKey string `gorm:"column:shard_key;type:text"`
	// Quantity is the token count moved (1 for claims, the delta for restocks)
	Quantity int `gorm:"column:quantity;not null;default:1"`
	// CreatedAt is the timestamp of the movement
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the Transaction model
func (Transaction) TableName() string {
	return "transactions"
}
