package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jobboard/campaign-portal/internal/config"
	"github.com/jobboard/campaign-portal/internal/http/handlers"
	"github.com/jobboard/campaign-portal/internal/middleware"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	tenants middleware.TenantLookup,
	sessions middleware.SessionVerifier,
	authHandler *handlers.AuthHandler,
	campaignHandler *handlers.CampaignHandler,
	fileHandler *handlers.FileHandler,
	wsHandler *handlers.WSHandler,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AppBaseURL,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Tenant",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Signed downloads carry their own credential and are tenant-independent.
	app.Get("/files/:token", fileHandler.Download)

	tenant := middleware.TenantMiddleware(tenants, cfg.AllowTenantOverride, log)
	api := app.Group("/api", tenant)

	// Auth (public)
	api.Post("/auth/request-magic-link",
		middleware.RateLimitMiddleware(rdb, cfg.MagicLinkRateLimit, cfg.MagicLinkRateWindow, middleware.ByTenantAndIP("magic-link"), log),
		authHandler.RequestMagicLink)
	api.Get("/auth/verify/:token",
		middleware.RateLimitMiddleware(rdb, 30, time.Minute, middleware.ByTenantAndIP("verify"), log),
		authHandler.Verify)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(sessions, cfg.SessionCookieName, log))
	protected.Get("/auth/session", authHandler.Session)
	protected.Post("/auth/logout", authHandler.Logout)

	// Customer success
	cs := protected.Group("/cs", middleware.RequirePortal(models.RoleCS))
	cs.Get("/campaigns", campaignHandler.ListCampaigns)
	cs.Post("/campaigns", campaignHandler.CreateCampaign)
	cs.Get("/campaigns/:id", campaignHandler.GetCampaign)
	cs.Post("/campaigns/:id/mark-live", campaignHandler.MarkLive)
	cs.Get("/campaigns/:id/assets/:assetId/url", campaignHandler.AssetURL)
	cs.Get("/agencies", campaignHandler.ListAgencies)

	// Customer
	customer := protected.Group("/customer", middleware.RequirePortal(models.RoleCustomer))
	customer.Get("/campaigns", campaignHandler.ListCampaigns)
	customer.Get("/campaign/:id", campaignHandler.GetCampaign)
	customer.Post("/campaign/:id/assets", campaignHandler.UploadAssets)
	customer.Post("/campaign/:id/start-review", campaignHandler.StartReview)
	customer.Post("/campaign/:id/approve", campaignHandler.Approve)
	customer.Post("/campaign/:id/request-changes", campaignHandler.RequestChanges)
	customer.Get("/campaign/:id/assets/:assetId/url", campaignHandler.AssetURL)

	// Agency
	agency := protected.Group("/agency", middleware.RequirePortal(models.RoleAgency))
	agency.Get("/campaigns", campaignHandler.ListCampaigns)
	agency.Get("/campaign/:id", campaignHandler.GetCampaign)
	agency.Post("/campaign/:id/start-draft", campaignHandler.StartDraft)
	agency.Post("/campaign/:id/draft", campaignHandler.UploadDraft)
	agency.Get("/campaign/:id/assets/:assetId/url", campaignHandler.AssetURL)

	// WebSocket
	app.Use("/ws", tenant, wsHandler.Upgrade)
	app.Get("/ws", websocket.New(wsHandler.Handle))
}
