package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/boosterlab/packdrop/internal/domain"
	"github.com/boosterlab/packdrop/internal/shard"
	"github.com/boosterlab/packdrop/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the database schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Pack{},
		&schema.AuthToken{},
		&schema.Transaction{},
		&schema.PackShard{},
		&schema.UserLedger{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	// Set defaults if not provided
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// LoadShardState retrieves the persisted state of a shard, returning
// (nil, nil) for a shard that has never been written
func (s *pgStore) LoadShardState(ctx context.Context, shardKey string) (*shard.State, error) {
	var row schema.PackShard
	err := s.db.WithContext(ctx).Where("shard_key = ?", shardKey).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load shard state: %w", err)
	}

	claimedBy := map[string]int64{}
	if len(row.ClaimedBy) > 0 {
		if err := json.Unmarshal(row.ClaimedBy, &claimedBy); err != nil {
			return nil, fmt.Errorf("failed to decode claimed_by for %s: %w", shardKey, err)
		}
	}

	return &shard.State{
		PackID:          row.PackID,
		ShardIndex:      row.ShardIndex,
		TokensAvailable: row.TokensAvailable,
		TotalTokens:     row.TotalTokens,
		ClaimedBy:       claimedBy,
	}, nil
}

// SaveShardState persists the full state of a shard in a single upsert
func (s *pgStore) SaveShardState(ctx context.Context, shardKey string, state *shard.State) error {
	claimedBy, err := json.Marshal(state.ClaimedBy)
	if err != nil {
		return fmt.Errorf("failed to encode claimed_by for %s: %w", shardKey, err)
	}

	row := schema.PackShard{
		ShardKey:        shardKey,
		PackID:          state.PackID,
		ShardIndex:      state.ShardIndex,
		TokensAvailable: state.TokensAvailable,
		TotalTokens:     state.TotalTokens,
		ClaimedBy:       claimedBy,
		UpdatedAt:       time.Now(),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shard_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"pack_id", "shard_index", "tokens_available", "total_tokens", "claimed_by", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save shard state: %w", err)
	}

	return nil
}

// GetPack retrieves a pack's denormalized catalog row
func (s *pgStore) GetPack(ctx context.Context, packID string) (*schema.Pack, error) {
	var pack schema.Pack
	err := s.db.WithContext(ctx).Where("id = ?", packID).First(&pack).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pack: %w", err)
	}
	return &pack, nil
}

// GetPacksByIDs retrieves multiple packs by their IDs
func (s *pgStore) GetPacksByIDs(ctx context.Context, packIDs []string) ([]*schema.Pack, error) {
	if len(packIDs) == 0 {
		return []*schema.Pack{}, nil
	}

	var packs []*schema.Pack
	err := s.db.WithContext(ctx).
		Where("id IN ?", packIDs).
		Find(&packs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get packs by IDs: %w", err)
	}

	return packs, nil
}

// RestockPack upserts a pack row, adding delta to both stock counters
func (s *pgStore) RestockPack(ctx context.Context, packID, name string, delta int) (*schema.Pack, error) {
	now := time.Now()
	pack := schema.Pack{
		ID:             packID,
		Name:           name,
		TotalStock:     delta,
		AvailableStock: delta,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_stock":     gorm.Expr("packs.total_stock + ?", delta),
			"available_stock": gorm.Expr("packs.available_stock + ?", delta),
			"updated_at":      now,
		}),
	}).Create(&pack).Error
	if err != nil {
		return nil, fmt.Errorf("failed to restock pack: %w", err)
	}

	// The upsert struct holds the insert values, not the conflict-path
	// result, so read the row back.
	var updated schema.Pack
	if err := s.db.WithContext(ctx).Where("id = ?", packID).First(&updated).Error; err != nil {
		return nil, fmt.Errorf("failed to get restocked pack: %w", err)
	}
	return &updated, nil
}

// DecrementAvailableStock decrements a pack's denormalized available count.
// The guard keeps the counter at zero or above; the shard rows remain the
// source of truth, so an already-zero counter is not an error here.
func (s *pgStore) DecrementAvailableStock(ctx context.Context, packID string) error {
	err := s.db.WithContext(ctx).Model(&schema.Pack{}).
		Where("id = ? AND available_stock > 0", packID).
		Updates(map[string]interface{}{
			"available_stock": gorm.Expr("available_stock - 1"),
			"updated_at":      time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to decrement available stock: %w", err)
	}
	return nil
}

// CreateAuthToken mints a bearer token for a user, replacing any tokens
// the user held before. Delete and insert run in one transaction so a user
// never ends up with zero or two live tokens.
func (s *pgStore) CreateAuthToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&schema.AuthToken{}).Error; err != nil {
			return fmt.Errorf("failed to delete previous tokens: %w", err)
		}

		row := schema.AuthToken{
			Token:     token,
			UserID:    userID,
			CreatedAt: time.Now(),
			ExpiresAt: expiresAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create auth token: %w", err)
		}

		return nil
	})
}

// GetUserIDByToken resolves a bearer token to a user ID. Unknown and
// expired tokens both resolve to the empty string.
func (s *pgStore) GetUserIDByToken(ctx context.Context, token string, now time.Time) (string, error) {
	var row schema.AuthToken
	err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve auth token: %w", err)
	}
	return row.UserID, nil
}

// AppendTransaction appends a row to the audit trail
func (s *pgStore) AppendTransaction(ctx context.Context, txn *schema.Transaction) error {
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// GetUserLedger retrieves a user's inventory, or nil if the user has no
// ledger row yet
func (s *pgStore) GetUserLedger(ctx context.Context, userID string) (*domain.Inventory, error) {
	var row schema.UserLedger
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user ledger: %w", err)
	}

	inventory := domain.NewInventory()
	if len(row.Inventory) > 0 {
		if err := json.Unmarshal(row.Inventory, &inventory); err != nil {
			return nil, fmt.Errorf("failed to decode inventory for %s: %w", userID, err)
		}
	}
	if inventory.Packs == nil {
		inventory.Packs = map[string]int{}
	}
	if inventory.Cards == nil {
		inventory.Cards = []domain.CardItem{}
	}

	return &inventory, nil
}

// SaveUserLedger replaces a user's inventory document
func (s *pgStore) SaveUserLedger(ctx context.Context, userID string, inventory *domain.Inventory) error {
	doc, err := json.Marshal(inventory)
	if err != nil {
		return fmt.Errorf("failed to encode inventory for %s: %w", userID, err)
	}

	row := schema.UserLedger{
		UserID:    userID,
		Inventory: doc,
		UpdatedAt: time.Now(),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"inventory", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save user ledger: %w", err)
	}

	return nil
}
