package dispute

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for dispute operations.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterProtectedRoutes sets up the auth-required dispute routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/disputes", h.File)
	r.GET("/disputes/:id", h.Get)
	r.GET("/contracts/:id/disputes", h.ListByContract)
	r.POST("/disputes/:id/resolve", h.Resolve)
}

type fileRequest struct {
	ContractID string `json:"contract_id" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
	Evidence   string `json:"evidence"`
}

func (h *Handler) File(c *gin.Context) {
	var req fileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	rec, err := h.svc.File(c.Request.Context(), req.ContractID, c.GetString("userID"), req.Reason, req.Evidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": toResponse(rec)})
}

type resolveRequest struct {
	Decision Decision `json:"decision" binding:"required"`
	Reason   string   `json:"reason"`
}

func (h *Handler) Resolve(c *gin.Context) {
	if c.GetString("role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Only admins resolve disputes"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	rec, err := h.svc.Resolve(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.Decision, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": toResponse(rec)})
}

func (h *Handler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": toResponse(rec)})
}

func (h *Handler) ListByContract(c *gin.Context) {
	recs, err := h.svc.ListByContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]disputeResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"disputes": out})
}

type resolutionResponse struct {
	ResolvedBy string `json:"resolved_by"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
	ResolvedAt string `json:"resolved_at"`
}

type disputeResponse struct {
	ID            string              `json:"id"`
	ContractID    string              `json:"contract_id"`
	DisputerID    string              `json:"disputer_id"`
	TransactionID string              `json:"transaction_id"`
	Reason        string              `json:"reason"`
	Evidence      string              `json:"evidence,omitempty"`
	Status        Status              `json:"status"`
	Resolution    *resolutionResponse `json:"resolution,omitempty"`
}

func toResponse(rec Record) disputeResponse {
	out := disputeResponse{
		ID:            rec.ID,
		ContractID:    rec.ContractID,
		DisputerID:    rec.DisputerID,
		TransactionID: rec.TransactionID,
		Reason:        rec.Reason,
		Evidence:      rec.Evidence,
		Status:        rec.Status,
	}
	if rec.Resolution != nil {
		out.Resolution = &resolutionResponse{
			ResolvedBy: rec.Resolution.ResolvedBy,
			Decision:   string(rec.Resolution.Decision),
			Reason:     rec.Resolution.Reason,
			ResolvedAt: rec.Resolution.ResolvedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	return out
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Dispute not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Caller is not a party to the contract"})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "Dispute or contract state changed; refetch and retry"})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Unexpected failure"})
	}
}
