package store

import (
	"context"
	"time"

	"github.com/boosterlab/packdrop/internal/domain"
	"github.com/boosterlab/packdrop/internal/shard"
	"github.com/boosterlab/packdrop/internal/store/schema"
)

// Store defines the interface for database operations
type Store interface {
	// Shard state persistence, used by the shard actors
	shard.StateStore

	// GetPack retrieves a pack's denormalized catalog row
	GetPack(ctx context.Context, packID string) (*schema.Pack, error)
	// GetPacksByIDs retrieves multiple packs by their IDs
	GetPacksByIDs(ctx context.Context, packIDs []string) ([]*schema.Pack, error)
	// RestockPack upserts a pack row, adding delta to both stock counters,
	// and returns the updated row
	RestockPack(ctx context.Context, packID, name string, delta int) (*schema.Pack, error)
	// DecrementAvailableStock decrements a pack's denormalized available
	// count, never below zero
	DecrementAvailableStock(ctx context.Context, packID string) error

	// CreateAuthToken mints a bearer token for a user, replacing any tokens
	// the user held before
	CreateAuthToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	// GetUserIDByToken resolves a bearer token to a user ID, returning the
	// empty string for unknown or expired tokens
	GetUserIDByToken(ctx context.Context, token string, now time.Time) (string, error)

	// AppendTransaction appends a row to the audit trail
	AppendTransaction(ctx context.Context, tx *schema.Transaction) error

	// GetUserLedger retrieves a user's inventory, or nil if the user has
	// no ledger row yet
	GetUserLedger(ctx context.Context, userID string) (*domain.Inventory, error)
	// SaveUserLedger replaces a user's inventory document
	SaveUserLedger(ctx context.Context, userID string, inventory *domain.Inventory) error
}
