package messaging

import (
	"context"
	"time"
)

// InviteLinkParams describes a single-use invite link request for a payment channel.
type InviteLinkParams struct {
	ChannelID   int64
	Name        string
	MemberLimit int
	ExpiresAt   time.Time
}

// Gateway is the chat-platform surface the order flow depends on. Implementations
// must be safe for concurrent use.
type Gateway interface {
	// SendMessage posts a text message and returns the platform message ID.
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	// SendPhoto posts a previously uploaded photo by its file ID with an optional caption.
	SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) (int64, error)
	// CreateInviteLink creates a revocable invite link for the channel.
	CreateInviteLink(ctx context.Context, params InviteLinkParams) (string, error)
	// RevokeInviteLink invalidates a previously created invite link.
	RevokeInviteLink(ctx context.Context, channelID int64, link string) error
	// BanMember removes a member from the channel and prevents rejoining.
	BanMember(ctx context.Context, channelID int64, userChatID int64) error
	// UnbanMember lifts a ban so the user can be invited again later.
	UnbanMember(ctx context.Context, channelID int64, userChatID int64) error
	// DeleteMessage removes a message previously posted by the bot.
	DeleteMessage(ctx context.Context, chatID int64, messageID int64) error
}
