package dto

import (
	"encoding/json"
	"time"

	"github.com/boosterlab/packdrop/internal/domain"
)

// ClaimPackRequest is the body of POST /pack/claim
type ClaimPackRequest struct {
	PackID string `json:"packId" binding:"required"`
}

// ClaimPackResponse reports a successful claim together with the pack's
// denormalized counters as of the claim
type ClaimPackResponse struct {
	Success        bool   `json:"success"`
	PackID         string `json:"packId"`
	TotalStock     int    `json:"totalStock"`
	AvailableStock int    `json:"availableStock"`
	SoldOut        bool   `json:"soldOut"`
}

// RestockPackRequest is the body of POST /pack/restock
type RestockPackRequest struct {
	PackID string `json:"packId" binding:"required"`
	Name   string `json:"name"`
	Stock  int    `json:"stock" binding:"required,min=1"`
}

// RestockPackResponse reports the restock outcome
type RestockPackResponse struct {
	Success    bool   `json:"success"`
	PackID     string `json:"packId"`
	Stock      int    `json:"stock"`
	TotalStock int    `json:"totalStock"`
	Shards     int    `json:"shards"`
}

// PackStatusResponse is the single-pack status body, shared by both
// aggregation modes
type PackStatusResponse struct {
	PackID         string `json:"packId"`
	TotalStock     int    `json:"totalStock"`
	TotalAvailable int    `json:"totalAvailable"`
	SoldOut        bool   `json:"soldOut"`
}

// BulkPackStatusRequest is the body of POST /pack/status/bulk
type BulkPackStatusRequest struct {
	PackIDs []string `json:"packIds" binding:"required"`
	Fast    bool     `json:"fast"`
}

// BulkPackStatusEntry is one pack's status inside a bulk response
type BulkPackStatusEntry struct {
	TotalStock     int  `json:"totalStock"`
	TotalAvailable int  `json:"totalAvailable"`
	SoldOut        bool `json:"soldOut"`
}

// BulkPackStatusResponse maps pack ID to its status
type BulkPackStatusResponse struct {
	Packs map[string]BulkPackStatusEntry `json:"packs"`
}

// InventoryResponse is the body of GET /user/inventory
type InventoryResponse struct {
	UserID    string           `json:"userId"`
	Inventory domain.Inventory `json:"inventory"`
}

// InventoryEditAdd describes additions in an inventory edit request
type InventoryEditAdd struct {
	Cards []domain.CardItem `json:"cards"`
	Packs map[string]int    `json:"packs"`
}

// InventoryEditRemove describes removals in an inventory edit request.
// Cards are referenced by ID.
type InventoryEditRemove struct {
	Cards []string       `json:"cards"`
	Packs map[string]int `json:"packs"`
}

// InventoryEditRequest is the body of POST /user/inventory/edit
type InventoryEditRequest struct {
	Add    *InventoryEditAdd    `json:"add"`
	Remove *InventoryEditRemove `json:"remove"`
}

// InventoryEditResponse is the body returned after an edit
type InventoryEditResponse struct {
	Success   bool             `json:"success"`
	Inventory domain.Inventory `json:"inventory"`
}

// BatchSubRequest is one sub-request inside a batch envelope. Headers
// carry the sub-request's own Authorization value.
type BatchSubRequest struct {
	ID      string            `json:"id" binding:"required"`
	Path    string            `json:"path" binding:"required"`
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers"`
}

// BatchRequest is the body of POST /batch. Timestamp is unix milliseconds.
type BatchRequest struct {
	ClientID  string            `json:"clientId" binding:"required"`
	BatchID   string            `json:"batchId" binding:"required"`
	Nonce     string            `json:"nonce" binding:"required"`
	Timestamp int64             `json:"timestamp" binding:"required"`
	Requests  []BatchSubRequest `json:"requests" binding:"required"`
}

// BatchSubResponse is one sub-request's outcome: its HTTP status and body
type BatchSubResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// BatchResponse maps sub-request ID to its outcome
type BatchResponse struct {
	BatchID   string                      `json:"batchId"`
	Responses map[string]BatchSubResponse `json:"responses"`
}

// CreateTokenRequest is the body of POST /admin/create-token
type CreateTokenRequest struct {
	UserID        string `json:"userId" binding:"required"`
	ExpiresInDays int    `json:"expiresInDays"`
}

// CreateTokenResponse returns the minted bearer token
type CreateTokenResponse struct {
	Success       bool      `json:"success"`
	UserID        string    `json:"userId"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
	ExpiresInDays int       `json:"expiresInDays"`
}

// HeartbeatResponse is the body of GET /heartbeat
type HeartbeatResponse struct {
	Alive     bool      `json:"alive"`
	Timestamp time.Time `json:"timestamp"`
}

// ToInventoryChange converts an edit request into the domain change form
func (r *InventoryEditRequest) ToInventoryChange() domain.InventoryChange {
	var change domain.InventoryChange

	if r.Add != nil {
		add := &domain.InventoryAdd{Cards: r.Add.Cards}
		for packID, qty := range r.Add.Packs {
			add.Packs = append(add.Packs, domain.PackDelta{PackID: packID, Quantity: qty})
		}
		change.Add = add
	}

	if r.Remove != nil {
		remove := &domain.InventoryRemove{Cards: r.Remove.Cards}
		for packID, qty := range r.Remove.Packs {
			remove.Packs = append(remove.Packs, domain.PackDelta{PackID: packID, Quantity: qty})
		}
		change.Remove = remove
	}

	return change
}
