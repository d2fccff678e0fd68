package schema

import "time"

// AuthToken represents the auth_tokens table - opaque bearer tokens mapped
// to user identities. A user holds at most one live token; minting a new
// one replaces any previous rows for that user.
type AuthToken struct {
	// Token is the opaque bearer credential (64 hex chars)
	Token string `gorm:"column:token;primaryKey;type:text"`
	// UserID is the identity the token authenticates
	UserID string `gorm:"column:user_id;not null;type:text;index:idx_auth_tokens_user_id"`
	// CreatedAt is the timestamp the token was minted
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// ExpiresAt is the timestamp after which the token stops authenticating
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
}

// TableName specifies the table name for the AuthToken model
func (AuthToken) TableName() string {
	return "auth_tokens"
}
