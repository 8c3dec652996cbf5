package ai

import "context"

// Message roles of a tutoring conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one earlier exchange in a tutoring conversation.
type Turn struct {
	Role    string
	Content string
}

// TutorPrompt is the question a student asks, with optional context.
type TutorPrompt struct {
	Subject  string
	Question string
	History  []Turn
}

// TutorReply is the tutor's answer.
type TutorReply struct {
	Answer string
	Model  string
}

// Tutor answers study questions.
type Tutor interface {
	Answer(ctx context.Context, prompt TutorPrompt) (TutorReply, error)
}
