package handler

import (
	"net/http"

	"clubimpact/internal/service"

	"github.com/gin-gonic/gin"
)

type ForumHandler struct {
	ledger *service.LedgerService
	reward int64
}

func NewForumHandler(ledger *service.LedgerService, reward int64) *ForumHandler {
	return &ForumHandler{ledger: ledger, reward: reward}
}

// Answer handles POST /forum/answers and pays the configured reward.
func (h *ForumHandler) Answer(c *gin.Context) {
	var req struct {
		UserID     string `json:"userId" binding:"required"`
		QuestionID string `json:"questionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	change, err := h.ledger.AwardGems(c.Request.Context(), req.UserID, h.reward, map[string]any{
		"reason":     "forum_answer",
		"questionId": req.QuestionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": change})
}
