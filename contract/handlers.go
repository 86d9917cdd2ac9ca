package contract

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for contract operations.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterProtectedRoutes sets up the auth-required contract routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/contracts", h.Create)
	r.GET("/contracts", h.List)
	r.GET("/contracts/:id", h.Get)
	r.POST("/contracts/:id/sign", h.Sign)
	r.POST("/contracts/:id/deposit-order", h.CreateDepositOrder)
	r.POST("/contracts/:id/extension", h.RequestExtension)
	r.POST("/contracts/:id/extension/confirm", h.ConfirmExtension)
}

type createRequest struct {
	RoomID  string    `json:"room_id" binding:"required"`
	EndDate time.Time `json:"end_date" binding:"required"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), c.GetString("userID"), req.RoomID, req.EndDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"contract": toResponse(rec)})
}

func (h *Handler) List(c *gin.Context) {
	recs, err := h.svc.ListByParty(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]contractResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"contracts": out})
}

func (h *Handler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": toResponse(rec)})
}

func (h *Handler) Sign(c *gin.Context) {
	rec, err := h.svc.SignByOwner(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": toResponse(rec)})
}

func (h *Handler) CreateDepositOrder(c *gin.Context) {
	order, err := h.svc.CreateDepositOrder(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"app_trans_id": order.AppTransID,
		"order_url":    order.OrderURL,
		"amount":       order.Amount,
	})
}

type extensionRequest struct {
	NewEndDate time.Time `json:"new_end_date" binding:"required"`
}

func (h *Handler) RequestExtension(c *gin.Context) {
	var req extensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	rec, err := h.svc.RequestExtension(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.NewEndDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": toResponse(rec)})
}

func (h *Handler) ConfirmExtension(c *gin.Context) {
	rec, err := h.svc.ConfirmExtension(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": toResponse(rec)})
}

type pendingUpdateResponse struct {
	NewEndDate      time.Time `json:"new_end_date"`
	TenantSignature bool      `json:"tenant_signature"`
	OwnerSignature  bool      `json:"owner_signature"`
}

type contractResponse struct {
	ID              string                 `json:"id"`
	RoomID          string                 `json:"room_id"`
	TenantID        string                 `json:"tenant_id"`
	OwnerID         string                 `json:"owner_id"`
	Status          Status                 `json:"status"`
	StartDate       time.Time              `json:"start_date"`
	EndDate         time.Time              `json:"end_date"`
	TenantSignature bool                   `json:"tenant_signature"`
	OwnerSignature  bool                   `json:"owner_signature"`
	PendingUpdate   *pendingUpdateResponse `json:"pending_update,omitempty"`
}

func toResponse(rec Contract) contractResponse {
	out := contractResponse{
		ID:              rec.ID,
		RoomID:          rec.RoomID,
		TenantID:        rec.TenantID,
		OwnerID:         rec.OwnerID,
		Status:          rec.Status,
		StartDate:       rec.StartDate,
		EndDate:         rec.EndDate,
		TenantSignature: rec.TenantSignature,
		OwnerSignature:  rec.OwnerSignature,
	}
	if rec.PendingUpdate != nil {
		out.PendingUpdate = &pendingUpdateResponse{
			NewEndDate:      rec.PendingUpdate.NewEndDate,
			TenantSignature: rec.PendingUpdate.TenantSignature,
			OwnerSignature:  rec.PendingUpdate.OwnerSignature,
		}
	}
	return out
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Contract not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Caller is not a party to this contract"})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "Contract state changed; refetch and retry"})
	case errors.Is(err, ErrRoomUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "room_unavailable", "message": "Room is not available"})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Unexpected failure"})
	}
}
