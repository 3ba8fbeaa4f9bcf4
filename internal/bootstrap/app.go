// Package bootstrap wires the orchestrator's concrete dependencies
// together: config, logging, the Postgres-backed Gateway, the Redis-backed
// room hub, the csrf verifier, the Room Registry, and the gin HTTP server,
// following the teacher repo's cmd/main.go construction order.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/auth"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/registry"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/roomhub"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/store/postgres"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/ws"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// App bundles the live server and every long-lived dependency it owns, so
// main can shut them down in the right order.
type App struct {
	cfg      *config.Config
	log      logging.Logger
	server   *http.Server
	db       *postgres.Store
	redis    *redis.Client
	registry *registry.Registry
}

// New constructs every dependency and the HTTP server, but does not start
// listening.
func New(cfg *config.Config) (*App, error) {
	log := logging.New(true)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap: connect redis: %w", err)
	}

	hub := roomhub.New(redisClient, log)
	csrfVerifier := auth.NewJWTVerifier(cfg.Auth)
	reg := registry.New(context.Background(), db, hub, csrfVerifier, cfg.Room, log)

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	wsHandler := ws.NewHandler(reg, hub, cfg.Room, log)
	router.GET("/ws/sessions/:roomCode", wsHandler.HandleConnection)
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	server := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		cfg:      cfg,
		log:      log,
		server:   server,
		db:       db,
		redis:    redisClient,
		registry: reg,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then drains
// in the reverse order dependencies were built: HTTP server, Room Registry,
// Redis, Postgres.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.log.Info("shutting down")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server shutdown error", "error", err)
	}
	a.registry.Shutdown()
	if err := a.redis.Close(); err != nil {
		a.log.Error("redis close error", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Error("postgres close error", "error", err)
	}
	return nil
}
