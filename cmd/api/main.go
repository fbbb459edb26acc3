package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/libreta-api/internal/config"
	"github.com/noah-isme/libreta-api/internal/database"
	"github.com/noah-isme/libreta-api/internal/handler"
	"github.com/noah-isme/libreta-api/internal/middleware"
	"github.com/noah-isme/libreta-api/internal/repository"
	"github.com/noah-isme/libreta-api/internal/router"
	"github.com/noah-isme/libreta-api/internal/service"
	"github.com/noah-isme/libreta-api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database handle: %v", err)
	}
	defer sqlDB.Close()

	healthChecks := map[string]handler.HealthCheckFunc{
		"database": sqlDB.PingContext,
	}

	var tokens storage.TokenStore
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		tokens = storage.NewRedisTokenStore(redisClient, "libreta:upload")
		healthChecks["redis"] = database.PingRedis(redisClient)
	} else {
		logger.Warn().Msg("redis url not configured, upload tokens kept in memory")
		tokens = storage.NewMemoryTokenStore()
	}

	files, err := storage.NewLocalFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("failed to prepare upload dir: %v", err)
	}

	var publisher service.EventPublisher
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Drain()
		publisher = conn
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	closureRepo := repository.NewClosureRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	consolidationRepo := repository.NewConsolidationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, publisher, cfg.AuditSubject, logger)
	closureService := service.NewClosureService(closureRepo, periodRepo, validate, activityService, logger)
	bimesterService := service.NewBimesterService(service.BimesterDependencies{
		Students:      studentRepo,
		Courses:       courseRepo,
		Periods:       periodRepo,
		Grades:        gradeRepo,
		Consolidation: consolidationRepo,
	}, validate, activityService, logger)
	annualService := service.NewAnnualService(studentRepo, courseRepo, consolidationRepo, validate, activityService, service.ParseSlotStrategy(cfg.Slotting), logger)
	gradeService := service.NewGradeEntryService(gradeRepo, periodRepo, closureService, validate, activityService, logger)
	spreadsheetService := service.NewSpreadsheetService(tokens, files, activityService, validate, service.SpreadsheetConfig{
		MaxSizeMB:    cfg.UploadMaxSizeMB,
		TokenTTL:     cfg.UploadTokenTTL,
		DefaultGrade: cfg.UGELDefaultGrade,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// Leave headroom so oversized workbooks reach the service and get FILE_TOO_LARGE.
		BodyLimit: (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ClosureHandler:       handler.NewClosureHandler(closureService, logger),
		ConsolidationHandler: handler.NewConsolidationHandler(bimesterService, annualService, logger),
		SpreadsheetHandler:   handler.NewSpreadsheetHandler(spreadsheetService, logger),
		GradeHandler:         handler.NewGradeHandler(gradeService, logger),
		ActivityHandler:      handler.NewActivityHandler(activityService, logger),
		HealthChecks:         healthChecks,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Str("slotting", cfg.Slotting).Msg("libreta api started")
	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
