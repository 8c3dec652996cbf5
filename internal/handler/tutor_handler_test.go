package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/handler"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/pkg/ai"
)

type echoTutor struct{}

func (echoTutor) Answer(_ context.Context, prompt ai.TutorPrompt) (ai.TutorReply, error) {
	return ai.TutorReply{Answer: "You asked: " + prompt.Question, Model: "echo"}, nil
}

func newTutorApp(tutor ai.Tutor) *fiber.App {
	app := fiber.New()
	svc := service.NewTutorService(tutor, validator.New(), zerolog.Nop())
	handler.NewTutorHandler(svc, nil, zerolog.Nop()).Register(app.Group("/api/v2/tutor", testIdentity))
	return app
}

func TestTutorAsk(t *testing.T) {
	app := newTutorApp(echoTutor{})

	resp := doJSON(t, app, http.MethodPost, "/api/v2/tutor/ask", "user-1", dto.TutorAskRequest{Question: "What is a noun?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body envelope[dto.TutorAnswerResponse]
	decodeResponse(t, resp, &body)
	require.Equal(t, "You asked: What is a noun?", body.Data.Answer)
}

func TestTutorAskWithoutProvider(t *testing.T) {
	app := newTutorApp(nil)

	resp := doJSON(t, app, http.MethodPost, "/api/v2/tutor/ask", "user-1", dto.TutorAskRequest{Question: "What is a noun?"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
