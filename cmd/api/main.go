package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/jobboard/campaign-portal/internal/auth"
	"github.com/jobboard/campaign-portal/internal/config"
	"github.com/jobboard/campaign-portal/internal/db"
	"github.com/jobboard/campaign-portal/internal/events"
	apphttp "github.com/jobboard/campaign-portal/internal/http"
	"github.com/jobboard/campaign-portal/internal/http/dto"
	"github.com/jobboard/campaign-portal/internal/http/handlers"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/jobboard/campaign-portal/internal/middleware"
	"github.com/jobboard/campaign-portal/internal/realtime"
	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/jobboard/campaign-portal/internal/services"
	"github.com/jobboard/campaign-portal/internal/storage"
	"github.com/jobboard/campaign-portal/migrations"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.MustLoad(log)
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	tenantRepo := repositories.NewTenantRepo(pool)
	userRepo := repositories.NewUserRepo(pool)
	agencyRepo := repositories.NewAgencyRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	assetRepo := repositories.NewAssetRepo(pool)
	activityRepo := repositories.NewActivityRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)
	magicLinkRepo := repositories.NewMagicLinkRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Mail and storage
	mailer, closeMailer, err := mail.New(cfg, log)
	if err != nil {
		log.Fatal("failed to set up mail transport", zap.Error(err))
	}
	defer closeMailer()

	objects, err := storage.NewLocalStore(cfg.StorageDir, cfg.StorageBucket, cfg.PublicAPIURL, cfg.SessionSecret)
	if err != nil {
		log.Fatal("failed to set up storage", zap.Error(err))
	}

	// Services
	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)
	workflow := services.NewWorkflowService(campaignRepo, objects, publisher, log)
	campaignService := services.NewCampaignService(campaignRepo, assetRepo, activityRepo, notificationRepo,
		userRepo, agencyRepo, objects, workflow, publisher, cfg.DownloadURLTTL, log)
	authService := services.NewAuthService(magicLinkRepo, campaignRepo, userRepo, agencyRepo,
		sessions, auth.NewRedisRevocationStore(rdb), mailer, services.AuthServiceConfig{
			AppBaseURL:   cfg.AppBaseURL,
			MagicLinkTTL: cfg.MagicLinkTTL,
			SendTimeout:  cfg.NotificationSendTimeout,
		}, log)

	// Realtime
	hub := realtime.NewHub(campaignService, log)
	if err := hub.Run(ctx, subscriber); err != nil {
		log.Fatal("failed to subscribe to campaign events", zap.Error(err))
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.SessionCookieName, cfg.CookieSecure, log)
	campaignHandler := handlers.NewCampaignHandler(campaignService, workflow, cfg.MaxUploadBytes(), log)
	fileHandler := handlers.NewFileHandler(objects, log)
	wsHandler := handlers.NewWSHandler(ctx, hub, authService, cfg.SessionCookieName, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.MaxUploadBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			reqID, _ := c.Locals(middleware.CtxRequestID).(string)
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(dto.ErrorResponse{Error: fe.Message, Code: "http_error", RequestID: reqID})
			}
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error:     "internal error",
				Code:      string(apperrors.KindInternal),
				RequestID: reqID,
			})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, tenantRepo, authService, authHandler, campaignHandler, fileHandler, wsHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
