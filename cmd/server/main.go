package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"clubimpact/config"
	"clubimpact/internal/auth"
	"clubimpact/internal/database"
	"clubimpact/internal/domain"
	"clubimpact/internal/metrics"
	"clubimpact/internal/middleware"
	"clubimpact/internal/pubsub"
	"clubimpact/internal/repository"
	"clubimpact/internal/router"
	"clubimpact/internal/service"
	"clubimpact/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	app := &cli.App{
		Name:  "clubimpact",
		Usage: "club chat gateway and impact ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a config file (optional)",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			tokenCommand(),
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Server.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// bootstrap loads config and opens the database.
func bootstrap(c *cli.Context) (*config.Config, *slog.Logger, *gorm.DB, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	return cfg, logger, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and websocket gateway",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "migrate", Value: true, Usage: "apply schema migrations on start"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, db, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if c.Bool("migrate") {
				if err := database.AutoMigrate(db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			return serve(c.Context, cfg, logger, db)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *gorm.DB) error {
	bus, err := pubsub.Open(cfg.Bus, logger)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	defer bus.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ledger := service.NewLedgerService(db, bus, logger, m, cfg.Ledger.LockTimeout)
	missions := service.NewMissionCache(repository.NewMissionRepository(db), cfg.Mission.CacheTTL, logger, m)
	gateway := ws.NewGateway(bus, repository.NewMessageRepository(db), logger, ws.WithMetrics(m))
	gateway.Start()

	limiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	stopSweep := make(chan struct{})
	defer close(stopSweep)
	go limiter.Run(stopSweep)

	engine := router.Setup(router.Deps{
		Config:   cfg,
		DB:       db,
		Logger:   logger,
		Ledger:   ledger,
		Missions: missions,
		Gateway:  gateway,
		Gatherer: reg,
		Limiter:  limiter,
	})
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout would cut long-lived websocket connections; the
		// pumps set their own write deadlines.
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr), slog.String("bus", cfg.Bus.Driver), slog.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-sigCtx.Done():
	case err := <-errCh:
		gateway.Close()
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; closing the
	// gateway ends them.
	gateway.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply schema migrations",
		Action: func(c *cli.Context) error {
			_, logger, db, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "insert demo users, missions, store items and a club",
		Action: func(c *cli.Context) error {
			_, logger, db, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			return database.Seed(db, logger)
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "print a signed access token for a user",
		ArgsUsage: "<user-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "role", Value: domain.RoleMember, Usage: "MEMBER or ADMIN"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: clubimpact token <user-id>", 2)
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			role := c.String("role")
			if role != domain.RoleMember && role != domain.RoleAdmin {
				return cli.Exit("role must be MEMBER or ADMIN", 2)
			}
			tok, err := auth.GenerateAccessToken(&cfg.JWT, c.Args().First(), role)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, tok)
			return nil
		},
	}
}
