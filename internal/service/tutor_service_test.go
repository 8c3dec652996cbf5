package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/pkg/ai"
)

type tutorStub struct {
	prompt ai.TutorPrompt
	calls  int
}

func (t *tutorStub) Answer(_ context.Context, prompt ai.TutorPrompt) (ai.TutorReply, error) {
	t.calls++
	t.prompt = prompt
	return ai.TutorReply{Answer: "Think about energy.", Model: "stub"}, nil
}

func TestTutorServiceCapsHistory(t *testing.T) {
	stub := &tutorStub{}
	svc := NewTutorService(stub, validator.New(), zerolog.Nop())

	history := make([]dto.TutorTurn, 0, 14)
	for i := 0; i < 14; i++ {
		history = append(history, dto.TutorTurn{Role: "user", Content: fmt.Sprintf("turn %d", i)})
	}

	answer, err := svc.Ask(context.Background(), "user-1", dto.TutorAskRequest{Subject: "Physics", Question: " What is work? ", History: history})
	require.NoError(t, err)
	require.Equal(t, "Think about energy.", answer.Answer)
	require.Len(t, stub.prompt.History, 10)
	require.Equal(t, "turn 4", stub.prompt.History[0].Content)
	require.Equal(t, "What is work?", stub.prompt.Question)
}

func TestTutorServiceValidatesBeforeCallingModel(t *testing.T) {
	stub := &tutorStub{}
	svc := NewTutorService(stub, validator.New(), zerolog.Nop())

	_, err := svc.Ask(context.Background(), "user-1", dto.TutorAskRequest{Question: "   "})
	require.Error(t, err)
	require.Zero(t, stub.calls)
}

func TestTutorServiceDisabled(t *testing.T) {
	svc := NewTutorService(nil, validator.New(), zerolog.Nop())

	_, err := svc.Ask(context.Background(), "user-1", dto.TutorAskRequest{Question: "Why is the sky blue?"})
	require.ErrorIs(t, err, ErrTutorUnavailable)
}
