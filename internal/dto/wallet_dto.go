package dto

import "time"

// Wallet transaction kinds.
const (
	WalletTxTopUp = "topup"
	WalletTxBill  = "bill"
)

// WalletResponse is the state of a user's wallet.
type WalletResponse struct {
	UserID       string              `json:"user_id"`
	Balance      float64             `json:"balance"`
	Transactions []WalletTransaction `json:"transactions"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// WalletTransaction is one balance change.
type WalletTransaction struct {
	Reference    string    `json:"reference"`
	Type         string    `json:"type"`
	Biller       string    `json:"biller,omitempty"`
	Customer     string    `json:"customer,omitempty"`
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// WalletTopUpRequest credits the wallet.
type WalletTopUpRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0,lte=1000000"`
}

// BillPaymentRequest debits the wallet to pay a biller.
type BillPaymentRequest struct {
	Biller   string  `json:"biller" validate:"required,oneof=airtime data electricity tv"`
	Customer string  `json:"customer" validate:"required,max=64"`
	Amount   float64 `json:"amount" validate:"required,gt=0,lte=1000000"`
}
