package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blackpass-api/config"
	"blackpass-api/handlers"
	"blackpass-api/middleware"
	"blackpass-api/services"
	"blackpass-api/utils"
	"blackpass-api/workers"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	if cfg.ClerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(cfg.ClerkSecretKey)
	identity := services.ClerkIdentity{}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := services.Migrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}
	if cfg.SeedReferenceData {
		if err := services.SeedReferenceData(db, cfg.CoinSymbol); err != nil {
			log.Fatal("failed to seed reference data:", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var proofs services.ProofStore
	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, utils.R2Options{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		})
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		proofs = store
	} else {
		log.Println("⚠️  R2 not configured, proof uploads will be rejected")
	}

	var gateways []services.Gateway
	if cfg.Paystack.SecretKey != "" {
		gateways = append(gateways, services.NewPaystackGateway(
			cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.CallbackURL,
			utils.NewHTTPClient(cfg.GatewayTimeout),
		))
	}
	if cfg.Paddle.APIKey != "" {
		paddleGateway, err := services.NewPaddleGateway(cfg.Paddle.APIKey, cfg.Paddle.PriceIDs, cfg.Paddle.Sandbox)
		if err != nil {
			log.Fatal("failed to initialize Paddle:", err)
		}
		gateways = append(gateways, paddleGateway)
	}

	broker := services.NewBroker()
	countryActivity := services.NewCountryActivityService(db)
	milestones := workers.NewMilestoneWorker(countryActivity, cfg.MilestoneQueue)

	geo := services.NewIPAPIGeolocator(cfg.GeoLookupURL, cfg.GeoTimeout)
	pricingService := services.NewPricingService(db, geo)
	registrationService := services.NewRegistrationService(db, identity, pricingService, broker, milestones)
	paymentService := services.NewPaymentService(db, pricingService, proofs, cfg.GatewayTimeout, gateways...)
	verificationService := services.NewVerificationService(db, broker)
	walletService := services.NewWalletService(db, broker)
	ledgerService := services.NewLedgerService(db, broker, milestones, cfg.CoinSymbol)
	lessonService := services.NewLessonService(db, broker)
	activityService := services.NewActivityService(db, broker, cfg.FeedPollInterval)

	middleware.InitPrometheus(append(services.Collectors(), workers.Collectors()...)...)

	go milestones.Run(ctx)

	sched, err := services.StartScheduler(verificationService, ledgerService, cfg.PaymentPendingTTL)
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Cleanup(ctx)

	app := fiber.New(fiber.Config{
		BodyLimit: 12 * 1024 * 1024, // proofs are capped at 10MB
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(middleware.MonitorMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.MetricsUser != "" {
		app.Get("/metrics", middleware.MetricsHandler(cfg.MetricsUser, cfg.MetricsPass)...)
	}

	clerkAuth := middleware.ClerkAuthMiddleware(identity)

	handlers.SetupOnboardingRoutes(app, pricingService, registrationService, limiter.Handler())
	handlers.SetupWebhookRoutes(app, verificationService, broker, handlers.WebhookSecrets{
		Paystack: cfg.Paystack.SecretKey,
		Paddle:   cfg.Paddle.WebhookSecret,
		Clerk:    cfg.ClerkWebhookSecret,
	})
	handlers.SetupAdminRoutes(app, middleware.ServiceTokenMiddleware(cfg.AdminServiceToken), handlers.AdminServices{
		Ledger:       ledgerService,
		Wallets:      walletService,
		Verification: verificationService,
		Registration: registrationService,
	})
	handlers.SetupActivityRoutes(app, clerkAuth, middleware.SSEAuthMiddleware(identity), activityService, countryActivity)

	// Everything registered below requires a session
	secured := app.Group("/", clerkAuth)
	handlers.SetupPaymentRoutes(secured, paymentService, limiter.Handler())
	handlers.SetupProgressionRoutes(secured, ledgerService, walletService, lessonService)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Gateways enabled: %d, proof uploads: %t", len(gateways), proofs != nil)
	log.Printf("✅ CORS configured for origins: %s", cfg.Origins())

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
