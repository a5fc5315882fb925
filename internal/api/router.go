package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/inkwell/content-platform/internal/api/handler"
	"github.com/inkwell/content-platform/internal/api/middleware"
	"github.com/inkwell/content-platform/internal/core/domain"
	"github.com/inkwell/content-platform/internal/core/service"
	"github.com/inkwell/content-platform/internal/infrastructure/config"
	mongodb "github.com/inkwell/content-platform/internal/infrastructure/db/mongo"
	redisdb "github.com/inkwell/content-platform/internal/infrastructure/db/redis"
	"github.com/inkwell/content-platform/internal/infrastructure/queue"
	"github.com/inkwell/content-platform/internal/pkg/password"
)

// NewRouter builds the Echo instance with all routes registered, plus
// the audit dispatcher the caller must Start.
func NewRouter(db *mongo.Database, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) (*echo.Echo, *queue.Dispatcher) {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("platform"))

	// --- Dependencies ---
	hasher := password.NewHasher(cfg.BcryptCost)
	userRepo := mongodb.NewUserRepository(db, hasher)
	auditRepo := mongodb.NewAuditRepository(db)

	auditService := service.NewAuditService(auditRepo, log)
	dispatcher := queue.NewDispatcher(cfg.AuditWorkers, auditService, log)

	issuer := service.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	limiter := redisdb.NewLoginLimiter(rdb, cfg.LoginMaxAttempts, cfg.LoginWindow)

	userService := service.NewUserService(userRepo, hasher, dispatcher, log)
	authService := service.NewAuthService(userRepo, hasher, issuer, limiter, dispatcher, log)

	authHandler := handler.NewAuthHandler(authService, userService)
	userHandler := handler.NewUserHandler(userService)
	authMiddleware := middleware.Auth(cfg.JWTSecret)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/refresh", authHandler.Refresh)

	// --- User routes ---
	users := e.Group("/users", authMiddleware)
	users.GET("", userHandler.List, adminOnly)
	users.GET("/profile", userHandler.Profile)
	users.GET("/stats", userHandler.Stats, adminOnly)
	users.POST("/roles", userHandler.BulkUpdateRole, adminOnly)
	users.GET("/:id", userHandler.Get, adminOnly)
	users.PATCH("/:id", userHandler.Update)
	users.POST("/:id/password", userHandler.ChangePassword)
	users.DELETE("/:id", userHandler.Delete, adminOnly)
	users.POST("/:id/restore", userHandler.Restore, adminOnly)

	// --- Observability (no auth required) ---
	e.GET("/metrics", echoprometheus.NewHandler())

	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(db, rdb)
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)

	return e, dispatcher
}
