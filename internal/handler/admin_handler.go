package handler

import (
	"net/http"

	"clubimpact/internal/middleware"
	"clubimpact/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	ledger *service.LedgerService
}

func NewAdminHandler(ledger *service.LedgerService) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

// AwardGems handles POST /admin/users/:id/gems. Negative amounts are
// corrections.
func (h *AdminHandler) AwardGems(c *gin.Context) {
	var req struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	change, err := h.ledger.AwardGems(c.Request.Context(), c.Param("id"), req.Amount, map[string]any{
		"reason":    req.Reason,
		"grantedBy": middleware.GetUserID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": change})
}

// Reconcile handles GET /admin/users/:id/reconcile.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	rec, err := h.ledger.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}
