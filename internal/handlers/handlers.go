package handlers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sarthi/gateway/internal/config"
	"sarthi/gateway/internal/middleware"
	"sarthi/gateway/internal/models"
	"sarthi/gateway/internal/offline"
	"sarthi/gateway/internal/repository"
	"sarthi/gateway/internal/service"
	"sarthi/gateway/internal/session"
)

// GenerationLister reads the generation journal.
type GenerationLister interface {
	List(ctx context.Context, limit int) ([]models.Generation, error)
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	origin      *url.URL
	offline     *offline.Worker
	sessions    *session.Registry
	authService *service.AuthService
	generations GenerationLister
	db          *pgxpool.Pool
	cache       *redis.Client
}

// NewHandlerSet wires the HTTP surface. db may be nil, in which case login
// and the generation listing report themselves unavailable.
func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, db *pgxpool.Pool, cache *redis.Client, worker *offline.Worker, sessions *session.Registry) (HandlerSet, error) {
	origin, err := url.Parse(cfg.Offline.Origin)
	if err != nil {
		return HandlerSet{}, fmt.Errorf("parse offline origin: %w", err)
	}

	h := HandlerSet{
		log:      log,
		cfg:      cfg,
		origin:   origin,
		offline:  worker,
		sessions: sessions,
		db:       db,
		cache:    cache,
	}

	if db != nil {
		h.authService = service.NewAuthService(repository.NewUserRepository(db), log)
		h.generations = repository.NewGenerationRepository(db)
	} else {
		h.authService = service.NewAuthService(nil, log)
	}

	return h, nil
}

// Mount registers the API under /api and sends every other path through the
// offline cache.
func (h HandlerSet) Mount(engine *gin.Engine) {
	h.Register(engine.Group("/api"))
	engine.NoRoute(h.Proxy)
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.POST("/contexts", h.CreateContext)

	sess := v1.Group("/session")
	sess.Use(middleware.BrowserContext(h.cfg))
	{
		sess.GET("", h.GetSession)
		sess.POST("/portal", h.OpenPortal)
		sess.POST("/back", h.Back)
		sess.POST("/login", h.Login)
		sess.POST("/setup/complete", h.CompleteSetup)
		sess.POST("/logout", h.Logout)
		sess.PUT("/service", h.SelectService)
	}

	ops := v1.Group("/offline")
	ops.Use(middleware.RequireAdmin(h.cfg.Security.AdminToken))
	{
		ops.GET("/generations", h.ListGenerations)
		ops.DELETE("/generations/:tag", h.PurgeGeneration)
		ops.POST("/install", h.InstallGeneration)
		ops.POST("/activate", h.ActivateGeneration)
	}
}
