package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	tutorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studyquest",
		Subsystem: "ai",
		Name:      "tutor_duration_seconds",
		Help:      "Duration of AI tutor requests",
	}, []string{"model"})

	tutorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyquest",
		Subsystem: "ai",
		Name:      "tutor_failures_total",
		Help:      "Number of AI tutor failures",
	}, []string{"model"})
)

// ChatCompleter is the subset of the OpenAI client used by the tutor.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig defines configuration options for the OpenAI tutor.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAITutor implements Tutor against the OpenAI chat completion API.
type OpenAITutor struct {
	client ChatCompleter
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAITutor builds a tutor using the provided configuration.
func NewOpenAITutor(cfg OpenAIConfig) (*OpenAITutor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return NewOpenAITutorWithClient(openai.NewClientWithConfig(config), cfg), nil
}

// NewOpenAITutorWithClient builds a tutor around an existing completion client.
func NewOpenAITutorWithClient(client ChatCompleter, cfg OpenAIConfig) *OpenAITutor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 700
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAITutor{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/studyquest-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_tutor").Logger(),
	}
}

// Answer sends the conversation to OpenAI and returns the first choice.
func (t *OpenAITutor) Answer(parent context.Context, prompt TutorPrompt) (TutorReply, error) {
	ctx, span := t.tracer.Start(parent, "openai.tutor", trace.WithAttributes(
		attribute.String("model", t.cfg.Model),
		attribute.String("tutor.subject", prompt.Subject),
		attribute.Int("tutor.history_turns", len(prompt.History)),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       t.cfg.Model,
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: t.cfg.Temperature,
		Messages:    buildMessages(prompt),
	}

	start := time.Now()
	resp, err := t.client.CreateChatCompletion(ctx, request)
	tutorDuration.WithLabelValues(t.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		tutorFailures.WithLabelValues(t.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TutorReply{}, fmt.Errorf("openai tutor: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		tutorFailures.WithLabelValues(t.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TutorReply{}, err
	}

	model := resp.Model
	if model == "" {
		model = t.cfg.Model
	}
	t.logger.Debug().Int("total_tokens", resp.Usage.TotalTokens).Msg("tutor answered")

	return TutorReply{
		Answer: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:  model,
	}, nil
}

func tutorSystemPrompt(subject string) string {
	prompt := "You are StudyQuest's study tutor for secondary and university students. Explain concepts step by step, " +
		"check understanding with a short follow-up question, and never simply hand over answers to graded work."
	if subject != "" {
		prompt += " The current subject is " + subject + "."
	}
	return prompt
}

func buildMessages(prompt TutorPrompt) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: tutorSystemPrompt(strings.TrimSpace(prompt.Subject)),
	})

	for _, turn := range prompt.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.Question,
	})
	return messages
}
