// Package discord delivers messages to Discord channels and webhooks.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"rss_relay/internal/model"
	"rss_relay/internal/platform"
)

// maxMessageLength is Discord's limit on message content.
const maxMessageLength = 2000

type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleEdit(guildID, roleID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
}

// Client talks to the Discord REST API.
type Client struct {
	s   session
	log *slog.Logger
}

// New creates a Client authenticated with a bot token.
func New(token string, log *slog.Logger) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return NewWithSession(s, log), nil
}

// NewWithSession creates a Client around an existing session.
func NewWithSession(s session, log *slog.Logger) *Client {
	return &Client{s: s, log: log}
}

// SendMessage posts the content to the destination channel, or through its
// webhook when one is configured.
func (c *Client) SendMessage(ctx context.Context, dest model.Destination, content platform.Content) error {
	text := content.Fit(maxMessageLength)

	if dest.Webhook != nil {
		_, err := c.s.WebhookExecute(dest.Webhook.ID, dest.Webhook.Token, false, &discordgo.WebhookParams{
			Content:   text,
			Username:  content.Username,
			AvatarURL: content.AvatarURL,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("execute webhook %s: %w", dest.Webhook.ID, classify(err))
		}
		return nil
	}

	if _, err := c.s.ChannelMessageSend(dest.ChannelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to channel %s: %w", dest.ChannelID, classify(err))
	}
	return nil
}

// GetRoles lists the roles of the guild that owns the destination channel.
func (c *Client) GetRoles(ctx context.Context, dest model.Destination) ([]platform.Role, error) {
	guildID, err := c.guildID(ctx, dest)
	if err != nil {
		return nil, err
	}
	roles, err := c.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list roles of guild %s: %w", guildID, classify(err))
	}
	out := make([]platform.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, platform.Role{ID: r.ID, Name: r.Name, Mentionable: r.Mentionable})
	}
	return out, nil
}

// SetRoleMentionable changes the mentionability of the given roles. Roles
// already in the wanted state and roles that no longer exist are skipped.
func (c *Client) SetRoleMentionable(ctx context.Context, dest model.Destination, roleIDs []string, mentionable bool) error {
	if len(roleIDs) == 0 {
		return nil
	}
	guildID, err := c.guildID(ctx, dest)
	if err != nil {
		return err
	}
	dest.GuildID = guildID
	roles, err := c.GetRoles(ctx, dest)
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(roles))
	for _, r := range roles {
		current[r.ID] = r.Mentionable
	}

	var errs []error
	for _, id := range roleIDs {
		state, ok := current[id]
		if !ok || state == mentionable {
			continue
		}
		want := mentionable
		if _, err := c.s.GuildRoleEdit(guildID, id, &discordgo.RoleParams{Mentionable: &want}, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("edit role %s: %w", id, classify(err)))
			continue
		}
		c.log.Debug("role mentionability changed", "guild_id", guildID, "role_id", id, "mentionable", mentionable)
	}
	err = errors.Join(errs...)
	if errors.Is(err, platform.ErrMissingPermissions) {
		return fmt.Errorf("one or more roles are above the bot's role, or the bot lacks Manage Roles permission: %w", err)
	}
	return err
}

// ChannelWebhooks lists the webhook ids of the destination channel.
func (c *Client) ChannelWebhooks(ctx context.Context, dest model.Destination) ([]string, error) {
	hooks, err := c.s.ChannelWebhooks(dest.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list webhooks of channel %s: %w", dest.ChannelID, classify(err))
	}
	ids := make([]string, 0, len(hooks))
	for _, h := range hooks {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (c *Client) guildID(ctx context.Context, dest model.Destination) (string, error) {
	if dest.GuildID != "" {
		return dest.GuildID, nil
	}
	ch, err := c.s.Channel(dest.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("get channel %s: %w", dest.ChannelID, classify(err))
	}
	if ch.GuildID == "" {
		return "", fmt.Errorf("channel %s has no guild: %w", dest.ChannelID, platform.ErrUnsupported)
	}
	return ch.GuildID, nil
}

func classify(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return err
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownChannel:
		return fmt.Errorf("%w: %w", platform.ErrUnknownChannel, err)
	case discordgo.ErrCodeUnknownWebhook:
		return fmt.Errorf("%w: %w", platform.ErrUnknownWebhook, err)
	case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
		return fmt.Errorf("%w: %w", platform.ErrMissingPermissions, err)
	}
	return err
}

