package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/internal/utils"
)

// WalletHandler exposes the caller's wallet and bill payments.
type WalletHandler struct {
	service service.WalletService
	logger  zerolog.Logger
}

// NewWalletHandler constructs a wallet handler.
func NewWalletHandler(service service.WalletService, logger zerolog.Logger) *WalletHandler {
	return &WalletHandler{
		service: service,
		logger:  logger.With().Str("component", "wallet_handler").Logger(),
	}
}

// Register wires wallet routes. The router must require an authenticated user.
func (h *WalletHandler) Register(router fiber.Router) {
	router.Get("", h.balance)
	router.Post("/topup", h.topUp)
	router.Post("/bills", h.payBill)
}

func (h *WalletHandler) balance(c *fiber.Ctx) error {
	wallet, err := h.service.Balance(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load wallet")
	}
	return utils.SendSuccess(c, "wallet", wallet)
}

func (h *WalletHandler) topUp(c *fiber.Ctx) error {
	var payload dto.WalletTopUpRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	wallet, err := h.service.TopUp(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to top up wallet")
	}
	return utils.SendSuccess(c, "wallet topped up", wallet)
}

func (h *WalletHandler) payBill(c *fiber.Ctx) error {
	var payload dto.BillPaymentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	receipt, err := h.service.PayBill(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to pay bill")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "bill paid", receipt)
}
