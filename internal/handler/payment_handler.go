package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/middleware"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/internal/utils"
)

// PaymentHandler exposes material purchase checkout and verification.
type PaymentHandler struct {
	service service.PaymentService
	logger  zerolog.Logger
}

// NewPaymentHandler constructs a payment handler.
func NewPaymentHandler(service service.PaymentService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger.With().Str("component", "payment_handler").Logger(),
	}
}

// Register wires payment routes.
func (h *PaymentHandler) Register(router fiber.Router) {
	router.Post("/initialize", h.initialize)
	router.Get("/verify/:reference", h.verify)
	router.Get("/rewards", middleware.WithAuth(h.rewards, middleware.AuthOptions{RequireUser: true}))
}

func (h *PaymentHandler) initialize(c *fiber.Ctx) error {
	var payload dto.PaymentInitializeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	// the purchase is credited to the caller unless the client says otherwise
	if userID := userIDFromContext(c); userID != "" {
		if payload.Metadata == nil {
			payload.Metadata = map[string]interface{}{}
		}
		if _, ok := payload.Metadata["userId"]; !ok {
			payload.Metadata["userId"] = userID
		}
	}

	result, err := h.service.Initialize(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to initialize payment")
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PaymentHandler) verify(c *fiber.Ctx) error {
	reference := strings.TrimSpace(c.Params("reference"))

	result, err := h.service.Verify(requestContext(c), reference)
	if err != nil {
		return respondError(c, h.logger, err, "failed to verify payment")
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PaymentHandler) rewards(c *fiber.Ctx) error {
	reward, err := h.service.Rewards(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load rewards")
	}
	return utils.SendSuccess(c, "rewards", reward)
}
