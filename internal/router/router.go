package router

import (
	"log/slog"
	"net/http"

	"clubimpact/config"
	"clubimpact/internal/handler"
	"clubimpact/internal/middleware"
	"clubimpact/internal/repository"
	"clubimpact/internal/service"
	"clubimpact/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps are the long-lived components built by the server command.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *slog.Logger
	Ledger   *service.LedgerService
	Missions *service.MissionCache
	Gateway  *ws.Gateway
	Gatherer prometheus.Gatherer
	Limiter  *middleware.InMemoryRateLimiter
}

func Setup(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Logger))

	// Repositories
	userRepo := repository.NewUserRepository(d.DB)
	clubRepo := repository.NewClubRepository(d.DB)
	messageRepo := repository.NewMessageRepository(d.DB)
	storeRepo := repository.NewStoreRepository(d.DB)

	// Handlers
	userHandler := handler.NewUserHandler(d.Ledger)
	clubHandler := handler.NewClubHandler(clubRepo, userRepo, messageRepo, d.Gateway)
	missionHandler := handler.NewMissionHandler(d.Missions, d.Ledger)
	storeHandler := handler.NewStoreHandler(storeRepo, d.Ledger)
	forumHandler := handler.NewForumHandler(d.Ledger, cfg.Rewards.ForumAnswerGems)
	adminHandler := handler.NewAdminHandler(d.Ledger)
	realtimeHandler := handler.NewRealtimeHandler(&cfg.JWT, d.Gateway, clubRepo, d.Logger)

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": d.Gateway.ClientCount(), "rooms": d.Gateway.RoomCount()})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Realtime (token in query)
	r.GET("/ws", realtimeHandler.Upgrade)

	api := r.Group("/api/v1")
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}
	{
		users := api.Group("/users")
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.GET("/:id/events", userHandler.Events)

		clubs := api.Group("/clubs")
		clubs.POST("", clubHandler.Create)
		clubs.GET("/:id", clubHandler.Get)
		clubs.POST("/:id/members", clubHandler.Join)
		clubs.GET("/:id/members", clubHandler.Members)
		clubs.GET("/:id/messages", clubHandler.ListMessages)
		clubs.POST("/:id/messages", clubHandler.PostMessage)

		missions := api.Group("/missions")
		missions.GET("/current", missionHandler.Current)
		missions.GET("/proofs/:id", missionHandler.Proof)
		missions.POST("/events/video_watched", missionHandler.VideoWatched)

		store := api.Group("/store")
		store.GET("/items", storeHandler.ListItems)
		store.POST("/buy/:itemId", storeHandler.Buy)

		api.POST("/forum/answers", forumHandler.Answer)

		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(&cfg.JWT), middleware.AdminRequired())
		{
			admin.POST("/users/:id/gems", adminHandler.AwardGems)
			admin.GET("/users/:id/reconcile", adminHandler.Reconcile)
		}
	}

	return r
}
