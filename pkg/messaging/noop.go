package messaging

import (
	"context"

	"github.com/mvalderrama/shopflow-backend/pkg/logger"
)

// Noop is a Gateway that logs calls instead of hitting the chat platform. Used in
// dev environments and as a fallback when no bot token is configured.
type Noop struct {
	logg *logger.Logger
}

// NewNoop builds a logging no-op gateway. The logger may be nil.
func NewNoop(logg *logger.Logger) *Noop {
	return &Noop{logg: logg}
}

func (n *Noop) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	n.log(ctx, "noop gateway: send message", map[string]any{"chat_id": chatID})
	return 0, nil
}

func (n *Noop) SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) (int64, error) {
	n.log(ctx, "noop gateway: send photo", map[string]any{"chat_id": chatID, "file_id": fileID})
	return 0, nil
}

func (n *Noop) CreateInviteLink(ctx context.Context, params InviteLinkParams) (string, error) {
	n.log(ctx, "noop gateway: create invite link", map[string]any{"channel_id": params.ChannelID, "name": params.Name})
	return "https://invite.invalid/" + params.Name, nil
}

func (n *Noop) RevokeInviteLink(ctx context.Context, channelID int64, link string) error {
	n.log(ctx, "noop gateway: revoke invite link", map[string]any{"channel_id": channelID})
	return nil
}

func (n *Noop) BanMember(ctx context.Context, channelID int64, userChatID int64) error {
	n.log(ctx, "noop gateway: ban member", map[string]any{"channel_id": channelID, "user_chat_id": userChatID})
	return nil
}

func (n *Noop) UnbanMember(ctx context.Context, channelID int64, userChatID int64) error {
	n.log(ctx, "noop gateway: unban member", map[string]any{"channel_id": channelID, "user_chat_id": userChatID})
	return nil
}

func (n *Noop) DeleteMessage(ctx context.Context, chatID int64, messageID int64) error {
	n.log(ctx, "noop gateway: delete message", map[string]any{"chat_id": chatID, "message_id": messageID})
	return nil
}

func (n *Noop) log(ctx context.Context, msg string, fields map[string]any) {
	if n == nil || n.logg == nil {
		return
	}
	n.logg.Info(n.logg.WithFields(ctx, fields), msg)
}
