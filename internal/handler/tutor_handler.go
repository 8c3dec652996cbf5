package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/internal/utils"
)

// TutorHandler answers study questions with the AI tutor.
type TutorHandler struct {
	service service.TutorService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewTutorHandler constructs a tutor handler. A nil limiter disables rate limiting.
func NewTutorHandler(service service.TutorService, limiter fiber.Handler, logger zerolog.Logger) *TutorHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &TutorHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("component", "tutor_handler").Logger(),
	}
}

// Register wires tutor routes. The router must require an authenticated user.
func (h *TutorHandler) Register(router fiber.Router) {
	router.Post("/ask", h.limiter, h.ask)
}

func (h *TutorHandler) ask(c *fiber.Ctx) error {
	var payload dto.TutorAskRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	answer, err := h.service.Ask(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "tutor is unavailable right now")
	}
	return utils.SendSuccess(c, "tutor answer", answer)
}
