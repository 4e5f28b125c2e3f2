package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roast-battle/handlers"
	"roast-battle/middleware"
	"roast-battle/models"
	"roast-battle/services"
	"roast-battle/utils"
	"roast-battle/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	archive, err := utils.NewResultsArchive(ctx, cfg.R2)
	if err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	var payments *services.PaymentClient
	if cfg.PaymentGatewayURL != "" {
		payments = services.NewPaymentClient(cfg.PaymentGatewayURL, cfg.PaymentGatewayToken, utils.NewHTTPClient(60*time.Second))
	} else {
		log.Println("⚠️  PAYMENT_GATEWAY_URL not set: rounds open without the payment network and payouts cannot be sent")
	}
	var verifier services.PaymentVerifier
	if cfg.PaymentVerify && payments != nil {
		verifier = payments
	}

	judge := services.NewAnthropicJudge(cfg.AnthropicAPIKey, cfg.JudgeModel, cfg.JudgeURL, cfg.JudgeTimeout)
	if cfg.AnthropicAPIKey == "" {
		log.Println("⚠️  ANTHROPIC_API_KEY not set: scoring will fail until it is configured")
	}

	participantService := services.NewParticipantService(db)
	rankingService := services.NewRankingService(db)
	scoringService := services.NewScoringService(db, judge, rankingService)

	queue := workers.NewScoringQueue(scoringService, workers.ScoringQueueConfig{
		Workers:     cfg.ScoringWorkers,
		Size:        cfg.ScoringQueueSize,
		MaxAttempts: cfg.ScoringMaxAttempts,
	})

	var opener services.RoundOpener
	var sender services.PayoutSender
	if payments != nil {
		opener, sender = payments, payments
	}
	roundService := services.NewRoundService(db, opener, participantService, cfg.EntryFee, cfg.PrizePoolSharePercent)
	reservationService := services.NewReservationService(db, participantService)
	settlementService := services.NewSettlementService(db, verifier, queue)

	var resultsArchive services.ResultsArchiver
	if archive != nil {
		resultsArchive = archive
	}
	distributionService := services.NewDistributionService(db, roundService, sender, verifier, resultsArchive, cfg.PayoutSplits())

	go func() {
		if err := queue.Run(ctx); err != nil {
			log.Printf("Scoring queue error: %v", err)
		}
	}()
	if verifier != nil {
		go workers.PollPayouts(ctx, distributionService, cfg.PayoutPollInterval)
	}

	sched, err := roundService.StartLifecycleScheduler(ctx, scoringService)
	if err != nil {
		log.Fatal("failed to start round scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024,
	})

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Participant-ID, X-Request-ID",
		MaxAge:       86400,
	}))

	participantAuth := middleware.ParticipantContextMiddleware(cfg.JWTSecret)
	adminAuth := middleware.AdminAuthMiddleware(cfg.AdminAPIKey)

	handlers.SetupRoundRoutes(app, &handlers.RoundHandler{
		Rounds:       roundService,
		Reservations: reservationService,
	}, participantAuth)
	handlers.SetupEntryRoutes(app, &handlers.EntryHandler{
		Reservations: reservationService,
		Settlement:   settlementService,
	}, participantAuth)
	handlers.SetupAdminRoutes(app, &handlers.AdminHandler{
		Rounds:       roundService,
		Scoring:      scoringService,
		Ranking:      rankingService,
		Distribution: distributionService,
	}, adminAuth)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%d", cfg.Port)
	log.Printf("✅ Scoring queue running (%d workers)", cfg.ScoringWorkers)
	log.Println("✅ Round scheduler running (every 1m)")
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
