package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/receipts"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
	"github.com/mvalderrama/shopflow-backend/pkg/metrics"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type channelCleaner interface {
	CleanupChannel(ctx context.Context, orderID uuid.UUID) error
}

// InviteExpiryJobParams configure the invite expiry reaper.
type InviteExpiryJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Orders   orders.Repository
	Receipts receipts.Repository
	Users    users.Repository
	Cleaner  channelCleaner
	Gateway  messaging.Gateway
	Metrics  *metrics.WorkerJobMetrics
}

// NewInviteExpiryJob builds the sweep that cancels orders whose payment
// channel invite lapsed without a confirmed payment.
func NewInviteExpiryJob(params InviteExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Receipts == nil {
		return nil, fmt.Errorf("receipts repository required")
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
	return &inviteExpiryJob{
		logg:     params.Logger,
		db:       params.DB,
		orders:   params.Orders,
		receipts: params.Receipts,
		users:    params.Users,
		cleaner:  params.Cleaner,
		gateway:  params.Gateway,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type inviteExpiryJob struct {
	logg     *logger.Logger
	db       txRunner
	orders   orders.Repository
	receipts receipts.Repository
	users    users.Repository
	cleaner  channelCleaner
	gateway  messaging.Gateway
	metrics  *metrics.WorkerJobMetrics
	now      func() time.Time
}

func (j *inviteExpiryJob) Name() string { return "invite-expiry" }

func (j *inviteExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.orders.FindExpiredInvites(ctx, now)
	if err != nil {
		return fmt.Errorf("query expired invites: %w", err)
	}

	var errs []error
	cancelled := 0
	for _, order := range expired {
		done, err := j.expireOrder(ctx, order, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if done {
			cancelled++
		}
	}
	j.metrics.AddProcessed(j.Name(), cancelled)

	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": len(expired), "cancelled": cancelled})
	j.logg.Info(logCtx, "invite expiry sweep complete")
	return multierr.Combine(errs...)
}

// expireOrder cancels a single lapsed order. An order with a receipt under
// review is left alone; the receipt decision, not the clock, settles it.
func (j *inviteExpiryJob) expireOrder(ctx context.Context, order models.Order, now time.Time) (bool, error) {
	ctx = j.logg.WithOrderID(ctx, order.ID.String())

	pending, err := j.receipts.HasPendingForOrder(ctx, order.ID)
	if err != nil {
		return false, fmt.Errorf("check pending receipts: %w", err)
	}
	if pending {
		j.logg.Info(ctx, "invite lapsed but a receipt is under review; skipping")
		return false, nil
	}

	expiredAt := now
	if order.InviteExpiresAt != nil {
		expiredAt = *order.InviteExpiresAt
	}

	cancelled := false
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		// Re-check inside the transaction; a receipt submitted between
		// the sweep query and here must win over the expiry.
		pending, err := j.receipts.WithTx(tx).HasPendingForOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("recheck pending receipts: %w", err)
		}
		if pending {
			return nil
		}
		repo := j.orders.WithTx(tx)
		moved, err := repo.UpdateStatusGuarded(ctx, order.ID, order.Status, enums.OrderStatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if !moved {
			return nil
		}
		event, err := orders.NewEvent(order.ID, orders.SystemActor, enums.EventInviteExpired,
			orders.InviteExpiredPayload{ExpiredAt: expiredAt})
		if err != nil {
			return fmt.Errorf("build expiry event: %w", err)
		}
		if err := repo.CreateEvent(ctx, event); err != nil {
			return fmt.Errorf("record expiry event: %w", err)
		}
		cancelled = true
		return nil
	})
	if err != nil || !cancelled {
		return false, err
	}

	if err := j.cleaner.CleanupChannel(ctx, order.ID); err != nil {
		j.logg.Error(ctx, "channel cleanup after expiry failed", err)
	}
	if buyer, err := j.users.Find(ctx, order.UserID); err == nil {
		message := fmt.Sprintf("Order #%d was cancelled because the payment window expired.", order.OrderNumber)
		if _, err := j.gateway.SendMessage(ctx, buyer.ChatID, message); err != nil {
			j.logg.Error(ctx, "expiry notification failed", err)
		}
	}
	return true, nil
}
