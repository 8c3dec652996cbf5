package main

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/studyquest-api/internal/config"
	"github.com/noah-isme/studyquest-api/internal/handler"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/pkg/ai"
	cloud "github.com/noah-isme/studyquest-api/pkg/cloudinary"
	"github.com/noah-isme/studyquest-api/pkg/paystack"
)

// newPaymentGateway returns nil when no secret key is configured so that
// payment endpoints answer 503 instead of failing at the gateway.
func newPaymentGateway(cfg config.Config, logger zerolog.Logger) service.PaymentGateway {
	if cfg.PaystackSecretKey == "" {
		logger.Warn().Msg("paystack secret key not set, payments disabled")
		return nil
	}
	return paystack.NewClient(cfg.PaystackSecretKey, cfg.PaystackBaseURL, nil)
}

func newAttachmentStorage(cfg config.Config, logger zerolog.Logger) service.FileStorage {
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if !cloudCfg.Configured() {
		logger.Warn().Msg("cloudinary credentials not set, attachments disabled")
		return nil
	}

	storage, err := cloud.New(cloudCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise cloudinary, attachments disabled")
		return nil
	}
	return storage
}

func newTutor(cfg config.Config, logger zerolog.Logger) ai.Tutor {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("openai api key not set, tutor disabled")
		return nil
	}

	tutor, err := ai.NewOpenAITutor(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise tutor")
		return nil
	}
	return tutor
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}
	return probes
}
