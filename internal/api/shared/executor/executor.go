package executor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/boosterlab/packdrop/internal/adapter"
	"github.com/boosterlab/packdrop/internal/api/shared/dto"
	apierrors "github.com/boosterlab/packdrop/internal/api/shared/errors"
	"github.com/boosterlab/packdrop/internal/domain"
	"github.com/boosterlab/packdrop/internal/ledger"
	"github.com/boosterlab/packdrop/internal/logger"
	"github.com/boosterlab/packdrop/internal/messaging"
	"github.com/boosterlab/packdrop/internal/store"
	"github.com/boosterlab/packdrop/internal/store/schema"
)

// InventoryEngine is the shard engine surface the executor drives
type InventoryEngine interface {
	Claim(ctx context.Context, userID, packID string, now time.Time) (string, error)
	Restock(ctx context.Context, packID string, stock int) (int, error)
	Status(ctx context.Context, packID string) domain.PackStatus
}

// Executor is the interface for the API executor. Both the REST handlers
// and the batch router go through it.
type Executor interface {
	// ClaimPack claims one token of a pack for a user
	ClaimPack(ctx context.Context, userID, packID string) (*dto.ClaimPackResponse, error)
	// RestockPack adds stock to a pack, spreading it across the shard set
	RestockPack(ctx context.Context, packID, name string, stock int) (*dto.RestockPackResponse, error)
	// PackStatus returns one pack's aggregate status, fast or accurate
	PackStatus(ctx context.Context, packID string, fast bool) (*dto.PackStatusResponse, error)
	// BulkPackStatus resolves up to 100 pack statuses in one call
	BulkPackStatus(ctx context.Context, packIDs []string, fast bool) (*dto.BulkPackStatusResponse, error)
	// GetInventory returns a user's pack/card inventory
	GetInventory(ctx context.Context, userID string) (*dto.InventoryResponse, error)
	// EditInventory applies a combined add/remove edit to a user's inventory
	EditInventory(ctx context.Context, userID string, req *dto.InventoryEditRequest) (*dto.InventoryEditResponse, error)
	// CreateToken mints a bearer token for a user, replacing any prior one
	CreateToken(ctx context.Context, userID string, expiresInDays int) (*dto.CreateTokenResponse, error)
}

type executor struct {
	store     store.Store
	engine    InventoryEngine
	ledger    *ledger.Service
	publisher messaging.Publisher
	clock     adapter.Clock
}

// NewExecutor creates the shared API executor
func NewExecutor(s store.Store, engine InventoryEngine, ledgerSvc *ledger.Service, publisher messaging.Publisher, clock adapter.Clock) Executor {
	return &executor{
		store:     s,
		engine:    engine,
		ledger:    ledgerSvc,
		publisher: publisher,
		clock:     clock,
	}
}

// followUpBackoff bounds the best-effort retries of post-claim side
// effects. Short and capped: these run inside the request.
func followUpBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}

func (e *executor) ClaimPack(ctx context.Context, userID, packID string) (*dto.ClaimPackResponse, error) {
	now := e.clock.Now()

	shardKey, err := e.engine.Claim(ctx, userID, packID, now)
	if err != nil {
		if errors.Is(err, domain.ErrPackSoldOut) {
			return nil, apierrors.NewSoldOutError("Pack sold out", packID)
		}
		return nil, apierrors.NewInternalError(fmt.Sprintf("Failed to claim pack: %v", err))
	}

	// The token is consumed at this point. Everything below is follow-up
	// bookkeeping: retried briefly, logged on exhaustion, never rolled
	// back into the shard.
	if err := backoff.Retry(func() error {
		_, err := e.ledger.AddPack(ctx, userID, packID)
		return err
	}, followUpBackoff(ctx)); err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to credit claimed pack to ledger"),
			zap.String("user_id", userID),
			zap.String("pack_id", packID),
		)
	}

	if err := backoff.Retry(func() error {
		return e.store.DecrementAvailableStock(ctx, packID)
	}, followUpBackoff(ctx)); err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to decrement available stock"),
			zap.String("pack_id", packID),
		)
	}

	txn := &schema.Transaction{
		ID:        ulid.Make().String(),
		UserID:    userID,
		PackID:    packID,
		Type:      schema.TransactionTypeClaim,
		ShardKey:  shardKey,
		Quantity:  1,
		CreatedAt: now,
	}
	if err := backoff.Retry(func() error {
		return e.store.AppendTransaction(ctx, txn)
	}, followUpBackoff(ctx)); err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to append claim transaction"),
			zap.String("user_id", userID),
			zap.String("pack_id", packID),
		)
	}

	if err := e.publisher.PublishClaim(ctx, &domain.ClaimEvent{
		EventID:   ulid.Make().String(),
		UserID:    userID,
		PackID:    packID,
		ShardKey:  shardKey,
		Timestamp: now,
	}); err != nil {
		logger.WarnCtx(ctx, "Failed to publish claim event",
			zap.String("pack_id", packID),
			zap.Error(err),
		)
	}

	resp := &dto.ClaimPackResponse{
		Success: true,
		PackID:  packID,
	}
	pack, err := e.store.GetPack(ctx, packID)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to read pack aggregate after claim",
			zap.String("pack_id", packID),
			zap.Error(err),
		)
		return resp, nil
	}
	if pack != nil {
		resp.TotalStock = pack.TotalStock
		resp.AvailableStock = pack.AvailableStock
		resp.SoldOut = pack.AvailableStock == 0
	}
	return resp, nil
}

func (e *executor) RestockPack(ctx context.Context, packID, name string, stock int) (*dto.RestockPackResponse, error) {
	if stock < 1 {
		return nil, apierrors.NewValidationError("stock must be at least 1")
	}

	shards, err := e.engine.Restock(ctx, packID, stock)
	if err != nil {
		return nil, apierrors.NewInternalError(fmt.Sprintf("Failed to restock shards: %v", err))
	}

	if name == "" {
		name = packID
	}
	pack, err := e.store.RestockPack(ctx, packID, name, stock)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to update pack aggregate: %v", err))
	}

	txn := &schema.Transaction{
		ID:        ulid.Make().String(),
		PackID:    packID,
		Type:      schema.TransactionTypeRestock,
		Quantity:  stock,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.AppendTransaction(ctx, txn); err != nil {
		logger.WarnCtx(ctx, "Failed to append restock transaction",
			zap.String("pack_id", packID),
			zap.Error(err),
		)
	}

	return &dto.RestockPackResponse{
		Success:    true,
		PackID:     packID,
		Stock:      stock,
		TotalStock: pack.TotalStock,
		Shards:     shards,
	}, nil
}

func (e *executor) PackStatus(ctx context.Context, packID string, fast bool) (*dto.PackStatusResponse, error) {
	if !fast {
		status := e.engine.Status(ctx, packID)
		return &dto.PackStatusResponse{
			PackID:         status.PackID,
			TotalStock:     status.TotalStock,
			TotalAvailable: status.TotalAvailable,
			SoldOut:        status.SoldOut,
		}, nil
	}

	pack, err := e.store.GetPack(ctx, packID)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to get pack: %v", err))
	}

	resp := &dto.PackStatusResponse{PackID: packID, SoldOut: true}
	if pack != nil {
		resp.TotalStock = pack.TotalStock
		resp.TotalAvailable = pack.AvailableStock
		resp.SoldOut = pack.AvailableStock == 0
	}
	return resp, nil
}

func (e *executor) BulkPackStatus(ctx context.Context, packIDs []string, fast bool) (*dto.BulkPackStatusResponse, error) {
	if len(packIDs) == 0 {
		return nil, apierrors.NewValidationError("packIds must not be empty")
	}
	if len(packIDs) > domain.MaxBulkStatusPacks {
		return nil, apierrors.NewValidationError(fmt.Sprintf("packIds exceeds maximum of %d", domain.MaxBulkStatusPacks))
	}

	resp := &dto.BulkPackStatusResponse{
		Packs: make(map[string]dto.BulkPackStatusEntry, len(packIDs)),
	}

	if !fast {
		for _, packID := range packIDs {
			status := e.engine.Status(ctx, packID)
			resp.Packs[packID] = dto.BulkPackStatusEntry{
				TotalStock:     status.TotalStock,
				TotalAvailable: status.TotalAvailable,
				SoldOut:        status.SoldOut,
			}
		}
		return resp, nil
	}

	packs, err := e.store.GetPacksByIDs(ctx, packIDs)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to get packs: %v", err))
	}

	known := make(map[string]*schema.Pack, len(packs))
	for _, pack := range packs {
		known[pack.ID] = pack
	}

	for _, packID := range packIDs {
		pack, ok := known[packID]
		if !ok {
			// Unknown pack reads as fully sold out rather than an error
			resp.Packs[packID] = dto.BulkPackStatusEntry{SoldOut: true}
			continue
		}
		resp.Packs[packID] = dto.BulkPackStatusEntry{
			TotalStock:     pack.TotalStock,
			TotalAvailable: pack.AvailableStock,
			SoldOut:        pack.AvailableStock == 0,
		}
	}
	return resp, nil
}

func (e *executor) GetInventory(ctx context.Context, userID string) (*dto.InventoryResponse, error) {
	inv, err := e.ledger.Get(ctx, userID)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to get inventory: %v", err))
	}

	return &dto.InventoryResponse{
		UserID:    userID,
		Inventory: inv,
	}, nil
}

func (e *executor) EditInventory(ctx context.Context, userID string, req *dto.InventoryEditRequest) (*dto.InventoryEditResponse, error) {
	change := req.ToInventoryChange()
	if change.Empty() {
		return nil, apierrors.NewValidationError("edit must include add or remove")
	}

	inv, err := e.ledger.Apply(ctx, userID, change)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to edit inventory: %v", err))
	}

	return &dto.InventoryEditResponse{
		Success:   true,
		Inventory: inv,
	}, nil
}

func (e *executor) CreateToken(ctx context.Context, userID string, expiresInDays int) (*dto.CreateTokenResponse, error) {
	if expiresInDays <= 0 {
		expiresInDays = domain.DefaultTokenTTLDays
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, apierrors.NewInternalError(fmt.Sprintf("Failed to generate token: %v", err))
	}
	token := hex.EncodeToString(raw)

	expiresAt := e.clock.Now().AddDate(0, 0, expiresInDays)
	if err := e.store.CreateAuthToken(ctx, userID, token, expiresAt); err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to store token: %v", err))
	}

	return &dto.CreateTokenResponse{
		Success:       true,
		UserID:        userID,
		Token:         token,
		ExpiresAt:     expiresAt,
		ExpiresInDays: expiresInDays,
	}, nil
}
