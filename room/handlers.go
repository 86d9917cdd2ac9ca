package room

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rentflow/housingarea"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterProtectedRoutes sets up the auth-required room routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/rooms", h.Create)
	r.GET("/rooms", h.ListAvailable)
	r.GET("/rooms/:id", h.Get)
	r.POST("/rooms/:id/boost-order", h.CreateBoostOrder)
}

type createRequest struct {
	HousingAreaID string `json:"housing_area_id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), c.GetString("userID"), CreateParams{
		HousingAreaID: req.HousingAreaID,
		Name:          req.Name,
		Price:         req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, roomResponse(rec))
}

func (h *Handler) ListAvailable(c *gin.Context) {
	rooms, err := h.svc.ListAvailable(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rooms))
	for _, rec := range rooms {
		out = append(out, roomResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *Handler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse(rec))
}

func (h *Handler) CreateBoostOrder(c *gin.Context) {
	order, err := h.svc.CreateBoostOrder(c.Request.Context(), c.Param("id"), c.GetString("userID"))
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

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, housingarea.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "housing area not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAreaUnpaid):
		c.JSON(http.StatusConflict, gin.H{"error": "housing area service fee unpaid"})
	case errors.Is(err, ErrAlreadyBoosted):
		c.JSON(http.StatusConflict, gin.H{"error": "room already boosted"})
	case errors.Is(err, ErrBadStatus):
		c.JSON(http.StatusConflict, gin.H{"error": "room not available"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func roomResponse(rec Room) gin.H {
	return gin.H{
		"id":              rec.ID,
		"housing_area_id": rec.HousingAreaID,
		"owner_id":        rec.OwnerID,
		"name":            rec.Name,
		"price":           rec.Price,
		"status":          rec.Status,
		"boosted":         rec.Boosted,
		"created_at":      rec.CreatedAt.Format(time.RFC3339),
		"updated_at":      rec.UpdatedAt.Format(time.RFC3339),
	}
}
