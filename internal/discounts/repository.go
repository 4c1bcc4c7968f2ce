package discounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository reads discount rules and usage counts, and persists usage rows
// when an order is actually created.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveAutomatic(ctx context.Context, at time.Time) ([]models.Discount, error)
	FindActiveByCode(ctx context.Context, code string, at time.Time) (*models.Discount, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Discount, error)
	CountUsage(ctx context.Context, discountID uuid.UUID) (int64, error)
	CountUserUsage(ctx context.Context, discountID, userID uuid.UUID) (int64, error)
	CountUserOrders(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateUsages(ctx context.Context, usages []models.DiscountUsage) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a discounts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveAutomatic(ctx context.Context, at time.Time) ([]models.Discount, error) {
	var rows []models.Discount
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("code IS NULL").
		Where("starts_at IS NULL OR starts_at <= ?", at).
		Where("ends_at IS NULL OR ends_at >= ?", at).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindActiveByCode(ctx context.Context, code string, at time.Time) (*models.Discount, error) {
	var row models.Discount
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("code = ?", code).
		Where("starts_at IS NULL OR starts_at <= ?", at).
		Where("ends_at IS NULL OR ends_at >= ?", at).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Discount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Discount
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountUsage(ctx context.Context, discountID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ?", discountID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUserUsage(ctx context.Context, discountID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ? AND user_id = ?", discountID, userID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUserOrders(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateUsages(ctx context.Context, usages []models.DiscountUsage) error {
	if len(usages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&usages).Error
}
