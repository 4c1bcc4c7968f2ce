package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"gorm.io/gorm"
)

// Cleaner tears down channel-side resources for one order.
type Cleaner interface {
	CleanupChannel(ctx context.Context, orderID uuid.UUID) error
}

// CleanupChannel idempotently removes the channel message, revokes the invite
// link and kicks the buyer out of the payment channel. Both the receipt
// approval path and the expiry reaper call this, sometimes twice for the same
// order, so every external call is best effort and the order row is the only
// source of what is left to do.
func (s *service) CleanupChannel(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.ChannelMessageID == nil && order.InviteLink == nil {
		return nil
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	channelID, err := s.settings.CheckoutChannelID(ctx)
	if err != nil {
		return err
	}
	if channelID != 0 {
		if order.ChannelMessageID != nil {
			if err := s.gateway.DeleteMessage(ctx, channelID, *order.ChannelMessageID); err != nil {
				s.logg.Warn(ctx, "channel message delete failed (may already be gone)")
			}
		}
		if order.InviteLink != nil {
			if err := s.gateway.RevokeInviteLink(ctx, channelID, *order.InviteLink); err != nil {
				s.logg.Warn(ctx, "invite link revoke failed (may already be revoked)")
			}
		}
		// Ban then unban removes the buyer from the channel without
		// locking them out of future orders. Fails when the buyer never
		// joined, which is fine.
		if buyer, err := s.users.Find(ctx, order.UserID); err == nil {
			if err := s.gateway.BanMember(ctx, channelID, buyer.ChatID); err != nil {
				s.logg.Warn(ctx, "channel member removal failed (buyer may not have joined)")
			} else if err := s.gateway.UnbanMember(ctx, channelID, buyer.ChatID); err != nil {
				s.logg.Warn(ctx, "channel member unban failed")
			}
		}
	}

	updates := map[string]any{
		"channel_message_id": nil,
		"invite_link":        nil,
		"invite_sent_at":     nil,
		"invite_expires_at":  nil,
	}
	if err := s.orders.Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear channel fields")
	}
	return nil
}
