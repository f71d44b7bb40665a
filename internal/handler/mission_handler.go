package handler

import (
	"math"
	"net/http"

	"clubimpact/internal/service"

	"github.com/gin-gonic/gin"
)

type MissionHandler struct {
	cache  *service.MissionCache
	ledger *service.LedgerService
}

func NewMissionHandler(cache *service.MissionCache, ledger *service.LedgerService) *MissionHandler {
	return &MissionHandler{cache: cache, ledger: ledger}
}

// Current handles GET /missions/current.
func (h *MissionHandler) Current(c *gin.Context) {
	cur, err := h.cache.GetCurrentMission(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": cur.Snapshot,
		"meta": gin.H{
			"cached":           cur.Cached,
			"expiresInSeconds": int64(math.Ceil(cur.ExpiresIn.Seconds())),
		},
	})
}

// Proof handles GET /missions/proofs/:id.
func (h *MissionHandler) Proof(c *gin.Context) {
	proof, err := h.cache.GetMissionProof(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proof})
}

// HeartsForDuration converts watch time to hearts: one per started minute.
func HeartsForDuration(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

// VideoWatched handles POST /missions/events/video_watched.
func (h *MissionHandler) VideoWatched(c *gin.Context) {
	var req struct {
		UserID          string `json:"userId" binding:"required"`
		MissionID       string `json:"missionId" binding:"required"`
		DurationSeconds int64  `json:"durationSeconds" binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	hearts := HeartsForDuration(req.DurationSeconds)
	change, err := h.ledger.AddHeartsToMission(c.Request.Context(), req.UserID, req.MissionID, hearts, map[string]any{
		"source":          "video_watched",
		"durationSeconds": req.DurationSeconds,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": change, "hearts": hearts})
}
