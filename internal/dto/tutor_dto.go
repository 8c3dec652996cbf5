package dto

// TutorTurn is one previous exchange in a tutoring conversation.
type TutorTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

// TutorAskRequest asks the AI tutor a question.
type TutorAskRequest struct {
	Subject  string      `json:"subject" validate:"max=100"`
	Question string      `json:"question" validate:"required,min=1,max=2000"`
	History  []TutorTurn `json:"history" validate:"max=50,dive"`
}

// TutorAnswerResponse is the tutor's reply.
type TutorAnswerResponse struct {
	Answer string `json:"answer"`
	Model  string `json:"model"`
}
