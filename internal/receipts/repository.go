package receipts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists payment receipts and their review outcome.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, receipt *models.Receipt) error
	Find(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error)
	HasPendingForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	ReviewGuarded(ctx context.Context, receiptID uuid.UUID, to enums.ReceiptStatus, reviewerID uuid.UUID, reviewedAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a receipts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, receipt *models.Receipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *repository) HasPendingForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReceiptStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReviewGuarded records the review verdict only while the receipt is still
// PENDING, so two managers cannot both decide the same receipt.
func (r *repository) ReviewGuarded(ctx context.Context, receiptID uuid.UUID, to enums.ReceiptStatus, reviewerID uuid.UUID, reviewedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("id = ? AND status = ?", receiptID, enums.ReceiptStatusPending).
		Updates(map[string]any{
			"status":      to,
			"reviewed_by": reviewerID,
			"reviewed_at": reviewedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
