package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type channelCleaner interface {
	CleanupChannel(ctx context.Context, orderID uuid.UUID) error
}

// SubmitInput is a buyer-provided proof of payment for one order.
type SubmitInput struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	FileID  string
	Note    string
}

// Service handles receipt submission and manager review.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Receipt, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error)
	Approve(ctx context.Context, receiptID, reviewerID uuid.UUID) error
	Reject(ctx context.Context, receiptID, reviewerID uuid.UUID, reason string) error
}

// Params configure the receipts service.
type Params struct {
	Tx       txRunner
	Receipts Repository
	Orders   orders.Repository
	Users    users.Repository
	Cleaner  channelCleaner
	Gateway  messaging.Gateway
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	receipts Repository
	orders   orders.Repository
	users    users.Repository
	cleaner  channelCleaner
	gateway  messaging.Gateway
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the receipts service with the required dependencies.
func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Receipts == nil {
		return nil, fmt.Errorf("receipts repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Cleaner == nil {
		return nil, fmt.Errorf("channel cleaner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("messaging gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       params.Tx,
		receipts: params.Receipts,
		orders:   params.Orders,
		users:    params.Users,
		cleaner:  params.Cleaner,
		gateway:  params.Gateway,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// Submit records a receipt for an order the buyer owns. Submitting against an
// order still in INVITE_SENT advances it to AWAITING_RECEIPT in the same
// transaction.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Receipt, error) {
	if input.UserID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id required")
	}
	if input.FileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt file required")
	}

	order, err := s.orders.FindForUser(ctx, input.OrderID, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusInviteSent && order.Status != enums.OrderStatusAwaitingReceipt {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
	}

	pending, err := s.receipts.HasPendingForOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending receipts")
	}
	if pending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a receipt for this order is already under review")
	}

	receipt := &models.Receipt{
		ID:      uuid.New(),
		OrderID: order.ID,
		UserID:  input.UserID,
		FileID:  input.FileID,
		Status:  enums.ReceiptStatusPending,
	}
	if input.Note != "" {
		receipt.Note = &input.Note
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		if order.Status == enums.OrderStatusInviteSent {
			moved, err := ordersRepo.UpdateStatusGuarded(ctx, order.ID, enums.OrderStatusInviteSent, enums.OrderStatusAwaitingReceipt)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state concurrently")
			}
		}
		if err := s.receipts.WithTx(tx).Create(ctx, receipt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store receipt")
		}
		event, err := orders.NewEvent(order.ID, orders.BuyerActor(input.UserID), enums.EventReceiptSubmitted,
			orders.ReceiptPayload{ReceiptID: receipt.ID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order event")
		}
		return ordersRepo.CreateEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error) {
	receipts, err := s.receipts.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	return receipts, nil
}

// Approve accepts a pending receipt and marks the order paid. Channel teardown
// and the buyer notification run after the commit; both are recoverable if
// they fail, the payment itself is not.
func (s *service) Approve(ctx context.Context, receiptID, reviewerID uuid.UUID) error {
	receipt, order, err := s.loadForReview(ctx, receiptID)
	if err != nil {
		return err
	}
	if order.Status != enums.OrderStatusAwaitingReceipt {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting receipt review")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reviewed, err := s.receipts.WithTx(tx).ReviewGuarded(ctx, receipt.ID, enums.ReceiptStatusAccepted, reviewerID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "review receipt")
		}
		if !reviewed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt already reviewed")
		}
		ordersRepo := s.orders.WithTx(tx)
		moved, err := ordersRepo.UpdateStatusGuarded(ctx, order.ID, enums.OrderStatusAwaitingReceipt, enums.OrderStatusPaid)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state concurrently")
		}
		event, err := orders.NewEvent(order.ID, orders.ManagerActor(reviewerID), enums.EventReceiptApproved,
			orders.ReceiptPayload{ReceiptID: receipt.ID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order event")
		}
		return ordersRepo.CreateEvent(ctx, event)
	})
	if err != nil {
		return err
	}

	if err := s.cleaner.CleanupChannel(ctx, order.ID); err != nil {
		s.logg.Error(ctx, "channel cleanup after payment failed", err)
	}
	if buyer, err := s.users.Find(ctx, order.UserID); err == nil {
		s.notify(ctx, buyer.ChatID, fmt.Sprintf("Payment for order #%d confirmed. Thank you!", order.OrderNumber))
	}
	return nil
}

// Reject declines a pending receipt. The order stays in AWAITING_RECEIPT so
// the buyer can submit a corrected one.
func (s *service) Reject(ctx context.Context, receiptID, reviewerID uuid.UUID, reason string) error {
	receipt, order, err := s.loadForReview(ctx, receiptID)
	if err != nil {
		return err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reviewed, err := s.receipts.WithTx(tx).ReviewGuarded(ctx, receipt.ID, enums.ReceiptStatusRejected, reviewerID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "review receipt")
		}
		if !reviewed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt already reviewed")
		}
		event, err := orders.NewEvent(order.ID, orders.ManagerActor(reviewerID), enums.EventReceiptRejected,
			orders.RejectionPayload{Reason: reason})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order event")
		}
		return s.orders.WithTx(tx).CreateEvent(ctx, event)
	})
	if err != nil {
		return err
	}

	if buyer, err := s.users.Find(ctx, order.UserID); err == nil {
		message := fmt.Sprintf("Receipt for order #%d was not accepted. Please submit a new one.", order.OrderNumber)
		if reason != "" {
			message = fmt.Sprintf("Receipt for order #%d was not accepted: %s. Please submit a new one.", order.OrderNumber, reason)
		}
		s.notify(ctx, buyer.ChatID, message)
	}
	return nil
}

func (s *service) loadForReview(ctx context.Context, receiptID uuid.UUID) (*models.Receipt, *models.Order, error) {
	if receiptID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id required")
	}
	receipt, err := s.receipts.Find(ctx, receiptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt")
	}
	if receipt.Status != enums.ReceiptStatusPending {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "receipt already reviewed")
	}
	order, err := s.orders.Find(ctx, receipt.OrderID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return receipt, order, nil
}

func (s *service) notify(ctx context.Context, chatID int64, text string) {
	if _, err := s.gateway.SendMessage(ctx, chatID, text); err != nil {
		s.logg.Error(ctx, "buyer notification failed", err)
	}
}
