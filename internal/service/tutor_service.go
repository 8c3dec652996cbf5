package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/pkg/ai"
)

const tutorHistoryLimit = 10

// ErrTutorUnavailable indicates no AI provider is configured.
var ErrTutorUnavailable = errors.New("ai tutor is not configured")

// TutorService answers study questions with an AI model.
type TutorService interface {
	Ask(ctx context.Context, userID string, payload dto.TutorAskRequest) (dto.TutorAnswerResponse, error)
}

type tutorService struct {
	tutor     ai.Tutor
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTutorService constructs a tutor service. A nil tutor disables it.
func NewTutorService(tutor ai.Tutor, validate *validator.Validate, logger zerolog.Logger) TutorService {
	return &tutorService{
		tutor:     tutor,
		validator: validate,
		logger:    logger.With().Str("component", "tutor_service").Logger(),
	}
}

func (s *tutorService) Ask(ctx context.Context, userID string, payload dto.TutorAskRequest) (dto.TutorAnswerResponse, error) {
	payload.Question = strings.TrimSpace(payload.Question)
	payload.Subject = strings.TrimSpace(payload.Subject)
	if err := s.validator.Struct(payload); err != nil {
		return dto.TutorAnswerResponse{}, err
	}
	if s.tutor == nil {
		return dto.TutorAnswerResponse{}, ErrTutorUnavailable
	}

	history := payload.History
	if len(history) > tutorHistoryLimit {
		history = history[len(history)-tutorHistoryLimit:]
	}
	turns := make([]ai.Turn, 0, len(history))
	for _, turn := range history {
		turns = append(turns, ai.Turn{Role: turn.Role, Content: turn.Content})
	}

	reply, err := s.tutor.Answer(ctx, ai.TutorPrompt{
		Subject:  payload.Subject,
		Question: payload.Question,
		History:  turns,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("tutor request failed")
		return dto.TutorAnswerResponse{}, err
	}

	return dto.TutorAnswerResponse{Answer: reply.Answer, Model: reply.Model}, nil
}
