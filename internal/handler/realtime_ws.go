package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"clubimpact/config"
	"clubimpact/internal/auth"
	"clubimpact/internal/domain"
	"clubimpact/internal/repository"
	"clubimpact/internal/ws"

	"github.com/gin-gonic/gin"
)

type RealtimeHandler struct {
	jwt     *config.JWTConfig
	gateway *ws.Gateway
	clubs   *repository.ClubRepository
	logger  *slog.Logger
}

func NewRealtimeHandler(jwt *config.JWTConfig, gateway *ws.Gateway, clubs *repository.ClubRepository, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{jwt: jwt, gateway: gateway, clubs: clubs, logger: logger}
}

// Upgrade handles GET /ws?token=…&clubId=…. The optional clubId is joined
// right away; further rooms are joined with frames.
func (h *RealtimeHandler) Upgrade(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}
	claims, err := auth.ParseAccessToken(h.jwt, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	ctx := c.Request.Context()
	clubID := c.Query("clubId")
	if clubID != "" {
		if err := h.authorize(ctx, clubID, claims.UserID); err != nil {
			respondError(c, err)
			return
		}
	}

	// Join before upgrading so nothing published after the handshake is missed.
	client := ws.NewClient(claims.UserID, ws.DefaultSendBuffer)
	h.gateway.Register(client)
	defer h.gateway.Leave(client)
	if clubID != "" {
		if err := h.gateway.Join(client, clubID, claims.UserID); err != nil {
			respondError(c, err)
			return
		}
	}
	conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.logger.DebugContext(ctx, "socket connected", slog.String("user_id", claims.UserID), slog.String("client_id", client.ID))
	ws.Serve(conn, client, func(raw []byte) {
		h.handleFrame(ctx, client, raw)
	})
	h.logger.DebugContext(ctx, "socket closed", slog.String("user_id", claims.UserID), slog.String("client_id", client.ID))
}

func (h *RealtimeHandler) handleFrame(ctx context.Context, client *ws.Client, raw []byte) {
	f, err := ws.ParseFrame(raw)
	if err != nil {
		client.Enqueue(ws.ErrorFrame("", "malformed frame"))
		return
	}
	switch f.Type {
	case ws.FrameJoin:
		if err := h.authorize(ctx, f.ClubID, client.UserID); err != nil {
			client.Enqueue(ws.ErrorFrame(f.ClubID, frameError(err)))
			return
		}
		if err := h.gateway.Join(client, f.ClubID, client.UserID); err != nil {
			client.Enqueue(ws.ErrorFrame(f.ClubID, frameError(err)))
		}
	case ws.FrameLeave:
		h.gateway.LeaveRoom(client, f.ClubID)
	case ws.FrameMessage:
		if !h.gateway.InRoom(client, f.ClubID) {
			client.Enqueue(ws.ErrorFrame(f.ClubID, "join the club before sending"))
			return
		}
		if _, err := h.gateway.RelayInbound(ctx, f.ClubID, client.UserID, f.Body); err != nil {
			client.Enqueue(ws.ErrorFrame(f.ClubID, frameError(err)))
		}
	default:
		client.Enqueue(ws.ErrorFrame(f.ClubID, "unknown frame type"))
	}
}

// authorize checks club membership before a room is joined.
func (h *RealtimeHandler) authorize(ctx context.Context, clubID, userID string) error {
	if clubID == "" {
		return fmt.Errorf("%w: clubId is required", domain.ErrValidation)
	}
	ok, err := h.clubs.IsMember(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a member of this club", domain.ErrForbidden)
	}
	return nil
}

func frameError(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrForbidden):
		return err.Error()
	default:
		return "internal error"
	}
}
