package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"luxe-escrow-server/config"
	"luxe-escrow-server/database"
	"luxe-escrow-server/jobs"
	"luxe-escrow-server/media"
	"luxe-escrow-server/middleware"
	"luxe-escrow-server/mq"
	"luxe-escrow-server/payments"
	"luxe-escrow-server/repository"
	"luxe-escrow-server/routes"
	"luxe-escrow-server/services"
	"luxe-escrow-server/telemetry"
	ws "luxe-escrow-server/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg.Telemetry)
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}

	db, err := database.Initialize(cfg.Database, cfg.Server.GinMode)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close(db)

	store := repository.NewGormStore(db)
	gateway := payments.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	hub := ws.NewHub()
	go hub.Run()

	// Optional integrations stay off when unconfigured.
	var events services.EventPublisher
	if cfg.Messaging.AMQPURL != "" {
		publisher, err := mq.NewPublisher(cfg.Messaging.AMQPURL, cfg.Messaging.Exchange)
		if err != nil {
			log.Printf("⚠️ Event publishing disabled: %v", err)
		} else {
			defer publisher.Close()
			events = publisher
		}
	} else {
		log.Println("⚠️ AMQP_URL not set, event publishing disabled")
	}

	var uploader services.DocumentUploader
	if cfg.Media.CloudinaryURL != "" {
		cld, err := media.NewCloudinaryUploader(cfg.Media.CloudinaryURL, cfg.Media.Folder)
		if err != nil {
			log.Printf("⚠️ Document uploads disabled: %v", err)
		} else {
			uploader = cld
		}
	} else {
		log.Println("⚠️ CLOUDINARY_URL not set, document uploads disabled")
	}

	notifier := services.NewNotifier(store, hub, events)
	escrow := services.NewEscrowService(store, gateway, notifier)
	onboarding := services.NewOnboardingService(store, gateway, notifier, uploader, cfg.Server.FrontendURL)
	notifications := services.NewNotificationService(store)

	if cfg.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	routes.RegisterValidators()

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	if cfg.Telemetry.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}

	limiter := middleware.NewRateLimiter()
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.InputValidationMiddleware())
	router.Use(middleware.RateLimitMiddleware(limiter))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Server.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.AuditLogMiddleware())

	routes.Register(router, routes.Dependencies{
		Config:        cfg,
		Escrow:        escrow,
		Onboarding:    onboarding,
		Notifications: notifications,
		Gateway:       gateway,
		Hub:           hub,
		Upgrader:      ws.NewUpgrader(cfg.Server.FrontendURL),
	})

	reconciliation := jobs.NewReconciliationJob(escrow, cfg.Reconcile)
	reconciliation.Start()

	// Drop idle per-IP limiters
	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := limiter.Cleanup(30 * time.Minute); removed > 0 {
					log.Printf("🔄 Removed %d idle rate limiters", removed)
				}
			case <-stopCleanup:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reconciliation.Stop()
	close(stopCleanup)
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server forced to shutdown: %v", err)
	}
	hub.Stop()
	if err := shutdownTracer(ctx); err != nil {
		log.Printf("⚠️ Tracer shutdown: %v", err)
	}
	log.Println("✅ Server exited")
}
