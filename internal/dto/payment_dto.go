package dto

import "time"

// PaymentInitializeRequest starts a gateway checkout. Amount is in naira.
type PaymentInitializeRequest struct {
	Email       string                 `json:"email" validate:"required,email"`
	Amount      float64                `json:"amount" validate:"required,gt=0"`
	Reference   string                 `json:"reference" validate:"omitempty,max=100"`
	CallbackURL string                 `json:"callback_url" validate:"omitempty,url"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// PaymentInitializeResponse mirrors the gateway initialize envelope.
type PaymentInitializeResponse struct {
	Status  bool                  `json:"status"`
	Message string                `json:"message"`
	Data    PaymentInitializeData `json:"data"`
}

// PaymentInitializeData holds the checkout handles returned by the gateway.
type PaymentInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// PaymentVerifyResponse reports the gateway verdict and the side effects applied.
type PaymentVerifyResponse struct {
	Status  bool              `json:"status"`
	Message string            `json:"message"`
	Data    PaymentVerifyData `json:"data"`
}

// PaymentVerifyData summarises a verified transaction.
type PaymentVerifyData struct {
	Reference  string     `json:"reference"`
	Status     string     `json:"status"`
	AmountKobo int64      `json:"amount"`
	Currency   string     `json:"currency"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	MaterialID string     `json:"material_id,omitempty"`
	Recorded   bool       `json:"recorded"`
	Cashback   float64    `json:"cashback"`
}

// RewardResponse is the cashback balance of a user.
type RewardResponse struct {
	UserID  string  `json:"user_id"`
	Balance float64 `json:"balance"`
}
