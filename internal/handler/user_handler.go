package handler

import (
	"net/http"

	"clubimpact/internal/service"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	ledger *service.LedgerService
}

func NewUserHandler(ledger *service.LedgerService) *UserHandler {
	return &UserHandler{ledger: ledger}
}

// Create handles POST /users.
func (h *UserHandler) Create(c *gin.Context) {
	var req struct {
		DisplayName string `json:"displayName" binding:"required"`
		InitialGems int64  `json:"initialGems"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.ledger.OpenAccount(c.Request.Context(), req.DisplayName, req.InitialGems)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": u})
}

// Get handles GET /users/:id and returns the current balance.
func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.ledger.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": u})
}

// Events handles GET /users/:id/events.
func (h *UserHandler) Events(c *gin.Context) {
	list, err := h.ledger.Events(c.Request.Context(), c.Param("id"), parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}
