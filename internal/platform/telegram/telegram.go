// Package telegram delivers messages to Telegram chats.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rss_relay/internal/model"
	"rss_relay/internal/platform"
)

// maxMessageLength is Telegram's limit on message text.
const maxMessageLength = 4096

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client sends messages through the Telegram Bot API. Telegram has no
// mentionable roles or channel webhooks, so those operations are unsupported.
type Client struct {
	api telegramAPI
	log *slog.Logger
}

// New creates a Client with the given bot token.
func New(token string, log *slog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewWithAPI(api, log), nil
}

// NewWithAPI creates a Client around an existing API implementation.
func NewWithAPI(api telegramAPI, log *slog.Logger) *Client {
	return &Client{api: api, log: log}
}

// SendMessage sends a text message to the destination chat.
func (c *Client) SendMessage(ctx context.Context, dest model.Destination, content platform.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(dest.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", dest.ChannelID, platform.ErrUnknownChannel)
	}

	msg := tgbotapi.NewMessage(chatID, content.Fit(maxMessageLength))
	msg.DisableWebPagePreview = true
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", classify(err))
	}
	c.log.Debug("telegram message sent", "chat_id", chatID)
	return nil
}

// SetRoleMentionable succeeds trivially for an empty role set and is
// unsupported otherwise.
func (c *Client) SetRoleMentionable(_ context.Context, _ model.Destination, roleIDs []string, _ bool) error {
	if len(roleIDs) == 0 {
		return nil
	}
	return platform.ErrUnsupported
}

// GetRoles is unsupported on Telegram.
func (c *Client) GetRoles(context.Context, model.Destination) ([]platform.Role, error) {
	return nil, platform.ErrUnsupported
}

// ChannelWebhooks is unsupported on Telegram.
func (c *Client) ChannelWebhooks(context.Context, model.Destination) ([]string, error) {
	return nil, platform.ErrUnsupported
}

func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", platform.ErrUnknownChannel, apiErr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", platform.ErrMissingPermissions, apiErr.Message)
	}
	return err
}
