package handler

import (
	"context"
	"fmt"
	"net/http"

	"clubimpact/internal/domain"
	"clubimpact/internal/models"
	"clubimpact/internal/repository"

	"github.com/gin-gonic/gin"
)

// Relayer persists a chat message and fans it out.
type Relayer interface {
	RelayInbound(ctx context.Context, clubID, senderID, body string) (*models.ClubMessage, error)
}

type ClubHandler struct {
	clubs    *repository.ClubRepository
	users    *repository.UserRepository
	messages *repository.MessageRepository
	relay    Relayer
}

func NewClubHandler(
	clubs *repository.ClubRepository,
	users *repository.UserRepository,
	messages *repository.MessageRepository,
	relay Relayer,
) *ClubHandler {
	return &ClubHandler{clubs: clubs, users: users, messages: messages, relay: relay}
}

// Create handles POST /clubs; the creator becomes the first member.
func (h *ClubHandler) Create(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required,max=120"`
		Description string `json:"description"`
		CreatedBy   string `json:"createdBy" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.requireUser(ctx, req.CreatedBy); err != nil {
		respondError(c, err)
		return
	}
	club := &models.Club{Name: req.Name, Description: req.Description, CreatedBy: req.CreatedBy}
	if err := h.clubs.Create(ctx, club); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": club})
}

// Get handles GET /clubs/:id.
func (h *ClubHandler) Get(c *gin.Context) {
	club, err := h.clubs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": club})
}

// Join handles POST /clubs/:id/members. Joining twice is not an error.
func (h *ClubHandler) Join(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	clubID := c.Param("id")
	if _, err := h.clubs.GetByID(ctx, clubID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.requireUser(ctx, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.clubs.AddMember(ctx, clubID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"clubId": clubID, "userId": req.UserID}})
}

// Members handles GET /clubs/:id/members.
func (h *ClubHandler) Members(c *gin.Context) {
	ctx := c.Request.Context()
	clubID := c.Param("id")
	if _, err := h.clubs.GetByID(ctx, clubID); err != nil {
		respondError(c, err)
		return
	}
	list, err := h.clubs.ListMembers(ctx, clubID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// ListMessages handles GET /clubs/:id/messages?cursor&limit. Each page is in
// ascending order; nextCursor is empty on the oldest page.
func (h *ClubHandler) ListMessages(c *gin.Context) {
	var before *repository.MessageCursor
	if raw := c.Query("cursor"); raw != "" {
		cur, err := repository.ParseMessageCursor(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		before = cur
	}
	ctx := c.Request.Context()
	clubID := c.Param("id")
	if _, err := h.clubs.GetByID(ctx, clubID); err != nil {
		respondError(c, err)
		return
	}
	page, err := h.messages.Page(ctx, clubID, before, parseLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	next := ""
	if page.NextCursor != nil {
		next = page.NextCursor.String()
	}
	c.JSON(http.StatusOK, gin.H{"data": page.Messages, "nextCursor": next})
}

// PostMessage handles POST /clubs/:id/messages. Only members may post.
func (h *ClubHandler) PostMessage(c *gin.Context) {
	var req struct {
		SenderID string `json:"senderId" binding:"required"`
		Body     string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	clubID := c.Param("id")
	if _, err := h.clubs.GetByID(ctx, clubID); err != nil {
		respondError(c, err)
		return
	}
	ok, err := h.clubs.IsMember(ctx, clubID, req.SenderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, fmt.Errorf("%w: %s is not a member of club %s", domain.ErrForbidden, req.SenderID, clubID))
		return
	}
	msg, err := h.relay.RelayInbound(ctx, clubID, req.SenderID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

func (h *ClubHandler) requireUser(ctx context.Context, userID string) error {
	ok, err := h.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}
