package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boosterlab/packdrop/internal/adapter"
	"github.com/boosterlab/packdrop/internal/api/middleware"
	"github.com/boosterlab/packdrop/internal/api/shared/dto"
	"github.com/boosterlab/packdrop/internal/api/shared/executor"
	"github.com/boosterlab/packdrop/internal/replay"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// ClaimPack claims one token of a pack for the authenticated user
	// POST /pack/claim
	ClaimPack(c *gin.Context)

	// RestockPack adds stock to a pack
	// POST /pack/restock
	RestockPack(c *gin.Context)

	// PackStatus returns one pack's aggregate status
	// GET /pack/status?packId=<id>&fast=<bool>
	PackStatus(c *gin.Context)

	// BulkPackStatus resolves up to 100 pack statuses
	// POST /pack/status/bulk
	BulkPackStatus(c *gin.Context)

	// GetInventory returns the authenticated user's inventory
	// GET /user/inventory
	GetInventory(c *gin.Context)

	// EditInventory applies an add/remove edit to the user's inventory
	// POST /user/inventory/edit
	EditInventory(c *gin.Context)

	// Batch executes up to 50 sub-requests under one replay-guarded envelope
	// POST /batch
	Batch(c *gin.Context)

	// CreateToken mints a bearer token (admin secret required)
	// POST /admin/create-token
	CreateToken(c *gin.Context)

	// Heartbeat returns liveness
	// GET /heartbeat
	Heartbeat(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	executor  executor.Executor
	guard     *replay.Guard
	validator middleware.TokenValidator
	clock     adapter.Clock
	maxBatch  int
}

// NewHandler creates a new REST API handler using the shared executor.
// The validator and clock re-run bearer authentication for batch
// sub-requests, which carry their own Authorization headers.
func NewHandler(exec executor.Executor, guard *replay.Guard, validator middleware.TokenValidator, clock adapter.Clock, maxBatch int) Handler {
	return &handler{
		executor:  exec,
		guard:     guard,
		validator: validator,
		clock:     clock,
		maxBatch:  maxBatch,
	}
}

// ClaimPack claims one token of a pack for the authenticated user
func (h *handler) ClaimPack(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondBadRequest(c, "Missing authenticated user")
		return
	}

	var req dto.ClaimPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	resp, err := h.executor.ClaimPack(c.Request.Context(), userID, req.PackID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RestockPack adds stock to a pack
func (h *handler) RestockPack(c *gin.Context) {
	var req dto.RestockPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	resp, err := h.executor.RestockPack(c.Request.Context(), req.PackID, req.Name, req.Stock)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PackStatus returns one pack's aggregate status
func (h *handler) PackStatus(c *gin.Context) {
	packID := c.Query("packId")
	if packID == "" {
		respondBadRequest(c, "packId is required")
		return
	}
	fast := c.Query("fast") == "true"

	resp, err := h.executor.PackStatus(c.Request.Context(), packID, fast)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// BulkPackStatus resolves up to 100 pack statuses
func (h *handler) BulkPackStatus(c *gin.Context) {
	var req dto.BulkPackStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	resp, err := h.executor.BulkPackStatus(c.Request.Context(), req.PackIDs, req.Fast)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetInventory returns the authenticated user's inventory
func (h *handler) GetInventory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondBadRequest(c, "Missing authenticated user")
		return
	}

	resp, err := h.executor.GetInventory(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// EditInventory applies an add/remove edit to the user's inventory
func (h *handler) EditInventory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondBadRequest(c, "Missing authenticated user")
		return
	}

	var req dto.InventoryEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	resp, err := h.executor.EditInventory(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateToken mints a bearer token for a user
func (h *handler) CreateToken(c *gin.Context) {
	var req dto.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	resp, err := h.executor.CreateToken(c.Request.Context(), req.UserID, req.ExpiresInDays)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Heartbeat returns liveness
func (h *handler) Heartbeat(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HeartbeatResponse{
		Alive:     true,
		Timestamp: h.clock.Now(),
	})
}
