package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/boosterlab/packdrop/internal/api/middleware"
	"github.com/boosterlab/packdrop/internal/api/shared/dto"
	apierrors "github.com/boosterlab/packdrop/internal/api/shared/errors"
)

// batchStatusRequest carries the pack status parameters as a JSON body
// when the call arrives inside a batch envelope.
type batchStatusRequest struct {
	PackID string `json:"packId"`
	Fast   bool   `json:"fast"`
}

// Batch executes up to 50 sub-requests under one replay-guarded envelope.
// Once the envelope is accepted the response is always 200; each
// sub-request reports its own status and body under its ID, and one
// failing sub-request never affects its siblings.
func (h *handler) Batch(c *gin.Context) {
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Malformed batch envelope", err.Error())
		return
	}

	if len(req.Requests) == 0 {
		respondValidationError(c, "batch must include at least one request")
		return
	}
	if len(req.Requests) > h.maxBatch {
		respondValidationError(c, fmt.Sprintf("batch exceeds maximum of %d requests", h.maxBatch))
		return
	}

	if err := h.guard.Check(req.Nonce, time.UnixMilli(req.Timestamp)); err != nil {
		respondReplayError(c, err.Error())
		return
	}

	responses := make(map[string]dto.BatchSubResponse, len(req.Requests))
	for _, sub := range req.Requests {
		responses[sub.ID] = h.executeSubRequest(c, sub)
	}

	c.JSON(http.StatusOK, dto.BatchResponse{
		BatchID:   req.BatchID,
		Responses: responses,
	})
}

// executeSubRequest routes one batch sub-request to the executor. Each
// sub-request authenticates with its own Authorization header.
func (h *handler) executeSubRequest(c *gin.Context, sub dto.BatchSubRequest) dto.BatchSubResponse {
	ctx := c.Request.Context()

	userID, authErr := h.authenticateSub(c, sub)

	switch sub.Path {
	case "/pack/claim":
		if authErr != nil {
			return subError(authErr)
		}
		var body dto.ClaimPackRequest
		if err := json.Unmarshal(sub.Body, &body); err != nil || body.PackID == "" {
			return subError(apierrors.NewValidationError("packId is required"))
		}
		resp, err := h.executor.ClaimPack(ctx, userID, body.PackID)
		if err != nil {
			return subError(err)
		}
		return subOK(resp)

	case "/pack/status":
		if authErr != nil {
			return subError(authErr)
		}
		var body batchStatusRequest
		if err := json.Unmarshal(sub.Body, &body); err != nil || body.PackID == "" {
			return subError(apierrors.NewValidationError("packId is required"))
		}
		resp, err := h.executor.PackStatus(ctx, body.PackID, body.Fast)
		if err != nil {
			return subError(err)
		}
		return subOK(resp)

	case "/user/inventory":
		if authErr != nil {
			return subError(authErr)
		}
		resp, err := h.executor.GetInventory(ctx, userID)
		if err != nil {
			return subError(err)
		}
		return subOK(resp)

	case "/user/inventory/edit":
		if authErr != nil {
			return subError(authErr)
		}
		var body dto.InventoryEditRequest
		if err := json.Unmarshal(sub.Body, &body); err != nil {
			return subError(apierrors.NewValidationError(err.Error()))
		}
		resp, err := h.executor.EditInventory(ctx, userID, &body)
		if err != nil {
			return subError(err)
		}
		return subOK(resp)

	default:
		return subError(apierrors.NewNotFoundError("Unknown batch path", sub.Path))
	}
}

// authenticateSub validates a sub-request's own bearer token
func (h *handler) authenticateSub(c *gin.Context, sub dto.BatchSubRequest) (string, error) {
	authHeader := sub.Headers["Authorization"]
	if authHeader == "" {
		authHeader = sub.Headers["authorization"]
	}

	result := middleware.Authenticate(c.Request.Context(), authHeader, h.validator, h.clock.Now())
	if !result.Success {
		return "", apierrors.NewUnauthorizedError("Authentication failed", result.Reason)
	}
	return result.UserID, nil
}

func subOK(v interface{}) dto.BatchSubResponse {
	body, _ := json.Marshal(v)
	return dto.BatchSubResponse{Status: http.StatusOK, Body: body}
}

func subError(err error) dto.BatchSubResponse {
	apiErr, ok := err.(*apierrors.APIError)
	if !ok {
		apiErr = apierrors.NewInternalError("Internal server error")
	}
	body, _ := json.Marshal(apiErr)
	return dto.BatchSubResponse{Status: statusForCode(apiErr.Code), Body: body}
}
