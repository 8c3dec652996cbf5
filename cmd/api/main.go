package main

import (
	"context"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/config"
	"github.com/noah-isme/studyquest-api/internal/database"
	"github.com/noah-isme/studyquest-api/internal/handler"
	"github.com/noah-isme/studyquest-api/internal/middleware"
	"github.com/noah-isme/studyquest-api/internal/realtime"
	"github.com/noah-isme/studyquest-api/internal/repository"
	"github.com/noah-isme/studyquest-api/internal/router"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if !cfg.IsProduction() {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
	}

	bus, err := realtime.NewBus(cfg, redisClient, natsConn, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create realtime bus")
	}

	var kv store.Store = store.NewMemoryStore()
	if redisClient != nil {
		kv = store.NewRedisStore(redisClient, cfg.RealtimeChannelBase)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	groupRepo := repository.NewGroupRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	groupService := service.NewGroupService(groupRepo, validate, logger)
	messageService := service.NewMessageService(messageRepo, profileRepo, bus, validate, logger)
	typingService := service.NewTypingService(bus, cfg.TypingTTL, logger)
	attachmentService := service.NewAttachmentService(newAttachmentStorage(cfg, logger), cfg.AttachmentMaxSizeMB, logger)

	paymentService, err := service.NewPaymentService(newPaymentGateway(cfg, logger), paymentRepo, validate, service.PaymentServiceConfig{
		CashbackRate: cfg.CashbackRate,
		CallbackURL:  cfg.PaystackCallbackURL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create payment service")
	}

	walletService, err := service.NewWalletService(kv, validate, cfg.WalletOpeningBalance, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create wallet service")
	}
	blogService := service.NewBlogService(kv, validate, logger)
	tutorService := service.NewTutorService(newTutor(cfg, logger), validate, logger)

	limiterStorage := middleware.NewRateLimitStorage(cfg.RedisURL)

	chatHandler := handler.NewChatHandler(groupService, messageService, typingService, attachmentService, validate, handler.ChatHandlerConfig{
		RequestTimeout: cfg.ChatRequestTimeout,
		Backoff:        realtime.DefaultBackoff(),
		TypingLimiter:  middleware.RateLimit("typing", 2, time.Second, limiterStorage),
	}, logger)
	paymentHandler := handler.NewPaymentHandler(paymentService, logger)
	walletHandler := handler.NewWalletHandler(walletService, logger)
	blogHandler := handler.NewBlogHandler(blogService, logger)
	tutorHandler := handler.NewTutorHandler(tutorService, middleware.RateLimit("tutor", 10, time.Minute, limiterStorage), logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: !cfg.IsProduction()})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:           chatHandler,
		PaymentHandler:        paymentHandler,
		WalletHandler:         walletHandler,
		BlogHandler:           blogHandler,
		TutorHandler:          tutorHandler,
		HealthProbes:          healthProbes(db, redisClient, natsConn),
		JWTMiddleware:         middleware.JWTProtected(cfg.JWTSecret),
		OptionalJWTMiddleware: middleware.JWTOptional(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		"studyquest-api": func(ctx context.Context) error {
			logger.Info().Msg("graceful shutdown initiated")
			if err := app.ShutdownWithContext(ctx); err != nil {
				return err
			}
			if err := bus.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close realtime bus")
			}
			if natsConn != nil {
				if err := natsConn.Drain(); err != nil {
					logger.Warn().Err(err).Msg("failed to drain nats connection")
				}
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close redis client")
				}
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	exitCode := <-wait
	logger.Info().Int("exit_code", exitCode).Msg("server stopped")
	os.Exit(exitCode)
}
