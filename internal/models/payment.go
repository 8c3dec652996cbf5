package models

import "time"

// Purchase records a study material bought through the payment gateway.
type Purchase struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Reference  string    `gorm:"size:128;uniqueIndex;not null" json:"reference"`
	UserID     string    `gorm:"size:64;index;not null" json:"user_id"`
	MaterialID string    `gorm:"size:64;index;not null" json:"material_id"`
	AmountKobo int64     `gorm:"not null" json:"amount_kobo"`
	Currency   string    `gorm:"size:8;default:NGN" json:"currency"`
	PaidAt     time.Time `json:"paid_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reward holds the accumulated cashback balance of a user, in naira.
type Reward struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Balance   float64   `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
