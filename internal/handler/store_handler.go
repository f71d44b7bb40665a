package handler

import (
	"net/http"

	"clubimpact/internal/repository"
	"clubimpact/internal/service"

	"github.com/gin-gonic/gin"
)

type StoreHandler struct {
	items  *repository.StoreRepository
	ledger *service.LedgerService
}

func NewStoreHandler(items *repository.StoreRepository, ledger *service.LedgerService) *StoreHandler {
	return &StoreHandler{items: items, ledger: ledger}
}

// ListItems handles GET /store/items.
func (h *StoreHandler) ListItems(c *gin.Context) {
	list, err := h.items.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Buy handles POST /store/buy/:itemId by spending the item's price.
func (h *StoreHandler) Buy(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	item, err := h.items.GetActiveItem(ctx, c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	change, err := h.ledger.Spend(ctx, req.UserID, item.PriceGems, map[string]any{
		"reason": "store_purchase",
		"itemId": item.ID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": change, "item": item})
}
