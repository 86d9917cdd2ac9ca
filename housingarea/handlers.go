package housingarea

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterProtectedRoutes sets up the auth-required housing area routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/housing-areas", h.Create)
	r.GET("/housing-areas", h.List)
	r.GET("/housing-areas/:id", h.Get)
	r.POST("/housing-areas/:id/service-order", h.CreateServiceOrder)
}

type createRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), c.GetString("userID"), req.Name, req.Address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, areaResponse(rec))
}

func (h *Handler) List(c *gin.Context) {
	areas, err := h.svc.ListByOwner(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(areas))
	for _, rec := range areas {
		out = append(out, areaResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"housing_areas": out})
}

func (h *Handler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, areaResponse(rec))
}

func (h *Handler) CreateServiceOrder(c *gin.Context) {
	order, err := h.svc.CreateServiceOrder(c.Request.Context(), c.Param("id"), c.GetString("userID"))
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
		c.JSON(http.StatusNotFound, gin.H{"error": "housing area not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"error": "service fee already paid"})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func areaResponse(rec HousingArea) gin.H {
	return gin.H{
		"id":         rec.ID,
		"owner_id":   rec.OwnerID,
		"name":       rec.Name,
		"address":    rec.Address,
		"paid":       rec.Paid,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}
}
