package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/studyquest-api/internal/models"
)

// PaymentRepository records verified purchases and the cashback they earn.
type PaymentRepository interface {
	RecordPurchase(ctx context.Context, purchase *models.Purchase, cashback float64) (bool, error)
	FindPurchase(ctx context.Context, reference string) (models.Purchase, error)
	RewardByUser(ctx context.Context, userID string) (models.Reward, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository constructs a GORM-backed payment repository.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// RecordPurchase inserts the purchase and credits cashback in one transaction.
// It returns false without touching the reward when the reference was
// already recorded.
func (r *paymentRepository) RecordPurchase(ctx context.Context, purchase *models.Purchase, cashback float64) (bool, error) {
	recorded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).Create(purchase)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		recorded = true

		reward := models.Reward{UserID: purchase.UserID, Balance: cashback}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance":    gorm.Expr("rewards.balance + excluded.balance"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).Create(&reward).Error
	})
	if err != nil {
		return false, err
	}

	return recorded, nil
}

func (r *paymentRepository) FindPurchase(ctx context.Context, reference string) (models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).First(&purchase, "reference = ?", reference).Error; err != nil {
		return models.Purchase{}, err
	}
	return purchase, nil
}

func (r *paymentRepository) RewardByUser(ctx context.Context, userID string) (models.Reward, error) {
	var reward models.Reward
	if err := r.db.WithContext(ctx).First(&reward, "user_id = ?", userID).Error; err != nil {
		return models.Reward{}, err
	}
	return reward, nil
}
