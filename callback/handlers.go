package callback

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the webhook endpoint. The gateway always gets HTTP 200 with
// a gateway-formatted acknowledgment; errors are encoded in return_code.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// RegisterRoutes sets up the public webhook route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/callback", h.Callback)
}

func (h *Handler) Callback(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, ackErr("malformed request"))
		return
	}
	c.JSON(http.StatusOK, h.dispatcher.Handle(c.Request.Context(), req))
}
