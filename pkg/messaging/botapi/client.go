package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
)

const (
	defaultBaseURL             = "https://api.telegram.org"
	responseBodyReadLimit int64 = 4096
)

var errTokenRequired = errors.New("bot token is required")

// Client implements messaging.Gateway against the Telegram Bot HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

var _ messaging.Gateway = (*Client)(nil)

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Bot API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Bot API client given a bot token.
func NewClient(token string, opts ...Option) (*Client, error) {
	trimmedToken := strings.TrimSpace(token)
	if trimmedToken == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		token:      trimmedToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

type messageResult struct {
	MessageID int64 `json:"message_id"`
}

type inviteLinkResult struct {
	InviteLink string `json:"invite_link"`
}

// SendMessage posts a text message and returns the platform message ID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "message text is required")
	}

	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	var result messageResult
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// SendPhoto posts a previously uploaded photo by its file ID.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) (int64, error) {
	if strings.TrimSpace(fileID) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "photo file ID is required")
	}

	payload := map[string]any{
		"chat_id": chatID,
		"photo":   fileID,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	var result messageResult
	if err := c.call(ctx, "sendPhoto", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// CreateInviteLink creates a revocable invite link for the channel.
func (c *Client) CreateInviteLink(ctx context.Context, params messaging.InviteLinkParams) (string, error) {
	if params.ChannelID == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "channel ID is required")
	}

	payload := map[string]any{
		"chat_id": params.ChannelID,
	}
	if params.Name != "" {
		payload["name"] = params.Name
	}
	if params.MemberLimit > 0 {
		payload["member_limit"] = params.MemberLimit
	}
	if !params.ExpiresAt.IsZero() {
		payload["expire_date"] = params.ExpiresAt.Unix()
	}
	var result inviteLinkResult
	if err := c.call(ctx, "createChatInviteLink", payload, &result); err != nil {
		return "", err
	}
	return result.InviteLink, nil
}

// RevokeInviteLink invalidates a previously created invite link.
func (c *Client) RevokeInviteLink(ctx context.Context, channelID int64, link string) error {
	if strings.TrimSpace(link) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invite link is required")
	}

	payload := map[string]any{
		"chat_id":     channelID,
		"invite_link": link,
	}
	return c.call(ctx, "revokeChatInviteLink", payload, nil)
}

// BanMember removes a member from the channel and prevents rejoining.
func (c *Client) BanMember(ctx context.Context, channelID int64, userChatID int64) error {
	payload := map[string]any{
		"chat_id": channelID,
		"user_id": userChatID,
	}
	return c.call(ctx, "banChatMember", payload, nil)
}

// UnbanMember lifts a ban so the user can be invited again later. only_if_banned
// keeps the call from kicking members who are currently in the channel.
func (c *Client) UnbanMember(ctx context.Context, channelID int64, userChatID int64) error {
	payload := map[string]any{
		"chat_id":        channelID,
		"user_id":        userChatID,
		"only_if_banned": true,
	}
	return c.call(ctx, "unbanChatMember", payload, nil)
}

// DeleteMessage removes a message previously posted by the bot.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int64) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", payload, nil)
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "bot api client not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("marshal %s request", method))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(method), bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("build %s request", method))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s request", method))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read %s response", method))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %w", resp.StatusCode, err), fmt.Sprintf("decode %s response", method))
	}
	if !envelope.OK {
		return pkgerrors.Wrap(
			pkgerrors.CodeDependency,
			fmt.Errorf("error_code %d: %s", envelope.ErrorCode, envelope.Description),
			fmt.Sprintf("%s rejected by bot api", method),
		)
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s result", method))
		}
	}
	return nil
}

func (c *Client) buildURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.baseURL, "/"), c.token, method)
}
