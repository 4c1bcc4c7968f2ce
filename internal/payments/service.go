package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/settings"
	"github.com/mvalderrama/shopflow-backend/internal/tasks"
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

// ApproveResult reports where the order landed after approval. A false
// Advanced with status APPROVED means "invite creation failed, retry later",
// not a hard failure.
type ApproveResult struct {
	Status          enums.OrderStatus
	Advanced        bool
	InviteLink      string
	DirectMessageID int64
}

// Service drives orders through the payment phase after a manager decision.
type Service interface {
	Approve(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (ApproveResult, error)
	Reject(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) error
	RetryInvite(ctx context.Context, orderID uuid.UUID) (ApproveResult, error)
	Cleaner
}

// Params configure the payments service.
type Params struct {
	Tx       txRunner
	Orders   orders.Repository
	Users    users.Repository
	Tasks    tasks.Repository
	Settings settings.Service
	Gateway  messaging.Gateway
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	orders   orders.Repository
	users    users.Repository
	tasks    tasks.Repository
	settings settings.Service
	gateway  messaging.Gateway
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the payments orchestrator with the required dependencies.
func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("tasks repository required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("messaging gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       params.Tx,
		orders:   params.Orders,
		users:    params.Users,
		tasks:    params.Tasks,
		settings: params.Settings,
		gateway:  params.Gateway,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// Approve moves the order to APPROVED first, then tries to deliver payment
// instructions. The approval itself is committed before any messaging, so a
// gateway outage never loses a manager decision.
func (s *service) Approve(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (ApproveResult, error) {
	if orderID == uuid.Nil {
		return ApproveResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ApproveResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return ApproveResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusAwaitingApproval {
		return ApproveResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting approval")
	}

	method, err := s.settings.PaymentMethod(ctx)
	if err != nil {
		return ApproveResult{}, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if err := s.transitionWithEvent(ctx, order.ID, enums.OrderStatusAwaitingApproval, enums.OrderStatusApproved,
		actor, enums.EventOrderApproved, orders.ApprovalPayload{PaymentMethod: method}); err != nil {
		return ApproveResult{}, err
	}

	buyer, err := s.users.Find(ctx, order.UserID)
	if err != nil {
		return ApproveResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	switch method {
	case enums.PaymentMethodChannel:
		return s.approveViaChannel(ctx, order, buyer, actor)
	default:
		return s.approveViaDirect(ctx, order, buyer, actor)
	}
}

func (s *service) approveViaChannel(ctx context.Context, order *models.Order, buyer *models.User, actor orders.Actor) (ApproveResult, error) {
	channelID, err := s.settings.CheckoutChannelID(ctx)
	if err != nil {
		return ApproveResult{}, err
	}
	if channelID == 0 {
		// No channel configured anywhere. Degrade to the direct flow
		// instead of failing the approval.
		if err := s.transitionWithEvent(ctx, order.ID, enums.OrderStatusApproved, enums.OrderStatusAwaitingReceipt,
			orders.SystemActor, enums.EventApprovalFallbackDirect,
			orders.FallbackPayload{Reason: "checkout channel not configured"}); err != nil {
			return ApproveResult{}, err
		}
		messageID := s.sendInstructionsDirect(ctx, order, buyer)
		s.scheduleInstructionCleanup(ctx, buyer.ChatID, messageID)
		return ApproveResult{Status: enums.OrderStatusAwaitingReceipt, Advanced: true, DirectMessageID: messageID}, nil
	}

	expiry, err := s.settings.InviteExpiry(ctx)
	if err != nil {
		return ApproveResult{}, err
	}

	messageID := s.postChannelInstructions(ctx, channelID, order)

	now := s.now().UTC()
	expiresAt := now.Add(expiry)
	inviteLink, err := s.gateway.CreateInviteLink(ctx, messaging.InviteLinkParams{
		ChannelID:   channelID,
		Name:        fmt.Sprintf("order-%d", order.OrderNumber),
		MemberLimit: 1,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		// Leave the order in APPROVED so a retry sweep can pick it up.
		s.logg.Error(ctx, "invite link creation failed", err)
		// The instructions already posted are useless without an invite,
		// and the retry posts fresh ones. Remove them now rather than
		// leaving an orphan no cleanup can reach.
		if messageID != 0 {
			if delErr := s.gateway.DeleteMessage(ctx, channelID, messageID); delErr != nil {
				s.logg.Warn(ctx, "orphaned channel instructions delete failed")
			}
		}
		if recordErr := s.recordEvent(ctx, order.ID, orders.SystemActor, enums.EventInviteCreationFailed,
			orders.InviteFailedPayload{Error: err.Error()}); recordErr != nil {
			return ApproveResult{}, recordErr
		}
		return ApproveResult{Status: enums.OrderStatusApproved, Advanced: false}, nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		updates := map[string]any{
			"invite_link":       inviteLink,
			"invite_sent_at":    now,
			"invite_expires_at": expiresAt,
		}
		if messageID != 0 {
			updates["channel_message_id"] = messageID
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist invite fields")
		}
		moved, err := repo.UpdateStatusGuarded(ctx, order.ID, enums.OrderStatusApproved, enums.OrderStatusInviteSent)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state concurrently")
		}
		event, err := orders.NewEvent(order.ID, actor, enums.EventInviteSent,
			orders.InviteSentPayload{InviteLink: inviteLink, ExpiresAt: expiresAt})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build invite event")
		}
		return repo.CreateEvent(ctx, event)
	})
	if err != nil {
		return ApproveResult{}, err
	}

	s.sendBestEffort(ctx, buyer.ChatID, fmt.Sprintf(
		"Order #%d approved. Join the payment channel to see payment instructions: %s\nThe link expires in %s and admits only you.",
		order.OrderNumber, inviteLink, formatDuration(expiresAt.Sub(now))))

	return ApproveResult{Status: enums.OrderStatusInviteSent, Advanced: true, InviteLink: inviteLink}, nil
}

func (s *service) approveViaDirect(ctx context.Context, order *models.Order, buyer *models.User, actor orders.Actor) (ApproveResult, error) {
	messageID := s.sendInstructionsDirect(ctx, order, buyer)

	if err := s.transitionWithEvent(ctx, order.ID, enums.OrderStatusApproved, enums.OrderStatusAwaitingReceipt,
		actor, enums.EventInstructionsSent, nil); err != nil {
		return ApproveResult{}, err
	}

	s.scheduleInstructionCleanup(ctx, buyer.ChatID, messageID)

	return ApproveResult{Status: enums.OrderStatusAwaitingReceipt, Advanced: true, DirectMessageID: messageID}, nil
}

// scheduleInstructionCleanup queues deletion of a directly sent instructions
// message once the payment window lapses. Both direct-delivery paths use this,
// and a scheduling failure never fails the approval.
func (s *service) scheduleInstructionCleanup(ctx context.Context, chatID, messageID int64) {
	if messageID == 0 {
		return
	}
	expiry, err := s.settings.InviteExpiry(ctx)
	if err != nil {
		s.logg.Error(ctx, "schedule instruction cleanup failed", err)
		return
	}
	task, err := tasks.NewDeleteMessageTask(chatID, messageID, s.now().UTC().Add(expiry))
	if err != nil {
		s.logg.Error(ctx, "schedule instruction cleanup failed", err)
		return
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		s.logg.Error(ctx, "schedule instruction cleanup failed", err)
	}
}

// RetryInvite re-runs instruction delivery for an order stuck in APPROVED
// after a failed invite creation. The effective payment method is resolved
// again, so a settings change between attempts is honored.
func (s *service) RetryInvite(ctx context.Context, orderID uuid.UUID) (ApproveResult, error) {
	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ApproveResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return ApproveResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusApproved {
		return ApproveResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting invite delivery")
	}

	buyer, err := s.users.Find(ctx, order.UserID)
	if err != nil {
		return ApproveResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	method, err := s.settings.PaymentMethod(ctx)
	if err != nil {
		return ApproveResult{}, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	switch method {
	case enums.PaymentMethodChannel:
		return s.approveViaChannel(ctx, order, buyer, orders.SystemActor)
	default:
		return s.approveViaDirect(ctx, order, buyer, orders.SystemActor)
	}
}

// Reject cancels an order awaiting approval and notifies the buyer.
func (s *service) Reject(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusAwaitingApproval {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting approval")
	}

	if err := s.transitionWithEvent(ctx, order.ID, enums.OrderStatusAwaitingApproval, enums.OrderStatusCancelled,
		actor, enums.EventOrderRejected, orders.RejectionPayload{Reason: reason}); err != nil {
		return err
	}

	if buyer, err := s.users.Find(ctx, order.UserID); err == nil {
		s.sendBestEffort(ctx, buyer.ChatID, fmt.Sprintf("Order #%d was declined.", order.OrderNumber))
	}
	return nil
}

func (s *service) transitionWithEvent(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus,
	actor orders.Actor, eventType enums.OrderEventType, payload any) error {
	if !orders.CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("transition %s -> %s not allowed", from, to))
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		moved, err := repo.UpdateStatusGuarded(ctx, orderID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state concurrently")
		}
		event, err := orders.NewEvent(orderID, actor, eventType, payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order event")
		}
		return repo.CreateEvent(ctx, event)
	})
}

func (s *service) recordEvent(ctx context.Context, orderID uuid.UUID, actor orders.Actor,
	eventType enums.OrderEventType, payload any) error {
	event, err := orders.NewEvent(orderID, actor, eventType, payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order event")
	}
	if err := s.orders.CreateEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order event")
	}
	return nil
}

// postChannelInstructions posts the payment instructions to the shared
// channel, with the configured image when one is set. Failures degrade to a
// missing channel message, never an error.
func (s *service) postChannelInstructions(ctx context.Context, channelID int64, order *models.Order) int64 {
	text := paymentInstructions(order)
	imageFileID, err := s.settings.CheckoutImageFileID(ctx)
	if err != nil {
		s.logg.Error(ctx, "resolve checkout image failed", err)
		imageFileID = ""
	}

	if imageFileID != "" {
		messageID, err := s.gateway.SendPhoto(ctx, channelID, imageFileID, text)
		if err == nil {
			return messageID
		}
		s.logg.Error(ctx, "channel photo post failed, retrying as text", err)
	}
	messageID, err := s.gateway.SendMessage(ctx, channelID, text)
	if err != nil {
		s.logg.Error(ctx, "channel instruction post failed", err)
		return 0
	}
	return messageID
}

// sendInstructionsDirect delivers instructions straight to the buyer,
// retrying once as plain text when the photo send fails.
func (s *service) sendInstructionsDirect(ctx context.Context, order *models.Order, buyer *models.User) int64 {
	text := paymentInstructions(order)
	imageFileID, err := s.settings.CheckoutImageFileID(ctx)
	if err != nil {
		s.logg.Error(ctx, "resolve checkout image failed", err)
		imageFileID = ""
	}

	var messageID int64
	if imageFileID != "" {
		messageID, err = s.gateway.SendPhoto(ctx, buyer.ChatID, imageFileID, text)
		if err != nil {
			s.logg.Error(ctx, "direct photo send failed, retrying as text", err)
			messageID = 0
		}
	}
	if messageID == 0 {
		messageID, err = s.gateway.SendMessage(ctx, buyer.ChatID, text)
		if err != nil {
			s.logg.Error(ctx, "direct instruction send failed", err)
			return 0
		}
	}

	s.sendBestEffort(ctx, buyer.ChatID, "Once you have paid, reply with a photo of your receipt to finish the order.")
	return messageID
}

func (s *service) sendBestEffort(ctx context.Context, chatID int64, text string) {
	if _, err := s.gateway.SendMessage(ctx, chatID, text); err != nil {
		s.logg.Error(ctx, "buyer notification failed", err)
	}
}

func paymentInstructions(order *models.Order) string {
	return fmt.Sprintf("Payment instructions for order #%d.\nAmount due: %s.", order.OrderNumber, formatCents(order.TotalCents))
}

func formatCents(cents int) string {
	if cents < 0 {
		cents = 0
	}
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	d = d.Round(time.Minute)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
