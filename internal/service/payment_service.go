package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/models"
	"github.com/noah-isme/studyquest-api/internal/observability"
	"github.com/noah-isme/studyquest-api/internal/repository"
	"github.com/noah-isme/studyquest-api/pkg/paystack"
)

const referenceAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	// ErrPaymentsUnavailable indicates no gateway secret key is configured.
	ErrPaymentsUnavailable = errors.New("payments are not configured")
	// ErrPaymentReferenceRequired indicates a verify call without a reference.
	ErrPaymentReferenceRequired = errors.New("payment reference is required")
)

// PaymentGateway is the subset of the Paystack client used by payments.
type PaymentGateway interface {
	Initialize(ctx context.Context, payload paystack.InitializeRequest) (paystack.InitializeResponse, error)
	Verify(ctx context.Context, reference string) (paystack.VerifyResponse, error)
}

// PaymentService starts and verifies material purchases.
type PaymentService interface {
	Initialize(ctx context.Context, payload dto.PaymentInitializeRequest) (dto.PaymentInitializeResponse, error)
	Verify(ctx context.Context, reference string) (dto.PaymentVerifyResponse, error)
	Rewards(ctx context.Context, userID string) (dto.RewardResponse, error)
}

// PaymentServiceConfig tunes payment behaviour.
type PaymentServiceConfig struct {
	CashbackRate float64
	CallbackURL  string
}

type paymentService struct {
	gateway   PaymentGateway
	repo      repository.PaymentRepository
	validator *validator.Validate
	cfg       PaymentServiceConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	reference func() string
}

// NewPaymentService constructs a payment service. A nil gateway disables
// initialize and verify.
func NewPaymentService(gateway PaymentGateway, repo repository.PaymentRepository, validate *validator.Validate, cfg PaymentServiceConfig, logger zerolog.Logger) (PaymentService, error) {
	generate, err := nanoid.CustomASCII(referenceAlphabet, 16)
	if err != nil {
		return nil, fmt.Errorf("init reference generator: %w", err)
	}

	return &paymentService{
		gateway:   gateway,
		repo:      repo,
		validator: validate,
		cfg:       cfg,
		logger:    logger.With().Str("component", "payment_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/studyquest-api/internal/service/payment"),
		reference: func() string { return "sq-" + generate() },
	}, nil
}

func (s *paymentService) Initialize(ctx context.Context, payload dto.PaymentInitializeRequest) (dto.PaymentInitializeResponse, error) {
	payload.Email = strings.TrimSpace(payload.Email)
	if err := s.validator.Struct(payload); err != nil {
		return dto.PaymentInitializeResponse{}, err
	}
	if s.gateway == nil {
		return dto.PaymentInitializeResponse{}, ErrPaymentsUnavailable
	}

	reference := strings.TrimSpace(payload.Reference)
	if reference == "" {
		reference = s.reference()
	}
	callback := payload.CallbackURL
	if callback == "" {
		callback = s.cfg.CallbackURL
	}
	amount := paystack.KoboFromNaira(payload.Amount)

	spanCtx, span := s.tracer.Start(ctx, "payment.initialize", trace.WithAttributes(
		attribute.String("payment.reference", reference),
		attribute.Int64("payment.amount_kobo", amount),
	))
	defer span.End()

	resp, err := s.gateway.Initialize(spanCtx, paystack.InitializeRequest{
		Email:       payload.Email,
		Amount:      amount,
		Reference:   reference,
		CallbackURL: callback,
		Metadata:    payload.Metadata,
	})
	if err != nil {
		observability.Payments().WithLabelValues("initialize", "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn().Err(err).Str("reference", reference).Str("email", maskEmail(payload.Email)).Msg("payment initialize rejected")
		return dto.PaymentInitializeResponse{}, err
	}

	observability.Payments().WithLabelValues("initialize", "ok").Inc()
	return dto.PaymentInitializeResponse{
		Status:  resp.Status,
		Message: resp.Message,
		Data: dto.PaymentInitializeData{
			AuthorizationURL: resp.Data.AuthorizationURL,
			AccessCode:       resp.Data.AccessCode,
			Reference:        resp.Data.Reference,
		},
	}, nil
}

// Verify records a purchase and credits cashback once per successful
// reference. Non-success transactions are reported without writes.
func (s *paymentService) Verify(ctx context.Context, reference string) (dto.PaymentVerifyResponse, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return dto.PaymentVerifyResponse{}, ErrPaymentReferenceRequired
	}
	if s.gateway == nil {
		return dto.PaymentVerifyResponse{}, ErrPaymentsUnavailable
	}

	spanCtx, span := s.tracer.Start(ctx, "payment.verify", trace.WithAttributes(
		attribute.String("payment.reference", reference),
	))
	defer span.End()

	resp, err := s.gateway.Verify(spanCtx, reference)
	if err != nil {
		observability.Payments().WithLabelValues("verify", "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.PaymentVerifyResponse{}, err
	}

	tx := resp.Data
	data := dto.PaymentVerifyData{
		Reference:  reference,
		Status:     tx.Status,
		AmountKobo: tx.Amount,
		Currency:   tx.Currency,
	}
	paidAt, hasPaidAt := tx.PaidTime()
	if hasPaidAt {
		data.PaidAt = &paidAt
	}
	out := dto.PaymentVerifyResponse{Status: resp.Status, Message: resp.Message, Data: data}

	if tx.Status != paystack.TransactionSuccess {
		observability.Payments().WithLabelValues("verify", "not_successful").Inc()
		return out, nil
	}

	userID, hasUser := tx.Metadata.String("userId")
	materialID, hasMaterial := tx.Metadata.String("materialId")
	out.Data.UserID = userID
	out.Data.MaterialID = materialID
	if !hasUser || !hasMaterial {
		s.logger.Warn().Str("reference", reference).Msg("successful payment without purchase metadata")
		observability.Payments().WithLabelValues("verify", "missing_metadata").Inc()
		return out, nil
	}

	if !hasPaidAt {
		paidAt = time.Now().UTC()
	}
	currency := tx.Currency
	if currency == "" {
		currency = "NGN"
	}
	cashback := s.cfg.CashbackRate * float64(tx.Amount) / 100

	purchase := models.Purchase{
		Reference:  reference,
		UserID:     userID,
		MaterialID: materialID,
		AmountKobo: tx.Amount,
		Currency:   currency,
		PaidAt:     paidAt,
	}
	recorded, err := s.repo.RecordPurchase(spanCtx, &purchase, cashback)
	if err != nil {
		observability.Payments().WithLabelValues("verify", "record_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "record purchase")
		return dto.PaymentVerifyResponse{}, fmt.Errorf("record purchase: %w", err)
	}

	out.Data.Recorded = recorded
	if recorded {
		out.Data.Cashback = cashback
		observability.CashbackAwarded().Add(cashback)
		observability.Payments().WithLabelValues("verify", "recorded").Inc()
		s.logger.Info().Str("reference", reference).Str("user_id", userID).Float64("cashback", cashback).Msg("purchase recorded")
	} else {
		observability.Payments().WithLabelValues("verify", "duplicate").Inc()
	}

	return out, nil
}

func (s *paymentService) Rewards(ctx context.Context, userID string) (dto.RewardResponse, error) {
	reward, err := s.repo.RewardByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RewardResponse{UserID: userID}, nil
		}
		return dto.RewardResponse{}, err
	}
	return dto.RewardResponse{UserID: reward.UserID, Balance: reward.Balance}, nil
}
