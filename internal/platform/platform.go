// Package platform defines the messaging-platform operations the delivery
// pipeline depends on.
package platform

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"rss_relay/internal/model"
)

// Errors reported by platform clients.
var (
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrUnknownWebhook     = errors.New("unknown webhook")
	ErrMissingPermissions = errors.New("missing permissions")
	ErrUnsupported        = errors.New("operation not supported by platform")
)

// Content is a rendered message.
type Content struct {
	Text string
	// Notice is a warning appended below Text. It is kept whole when the
	// message has to be shortened.
	Notice string
	// Username and AvatarURL customize webhook deliveries.
	Username  string
	AvatarURL string
}

// Fit joins Text and Notice into a message of at most limit runes. Text is
// cut first, marked with "...", so the notice stays readable.
func (c Content) Fit(limit int) string {
	if c.Notice == "" {
		return truncate([]rune(c.Text), limit)
	}
	notice := "\n\n" + c.Notice
	room := limit - utf8.RuneCountInString(notice)
	if room < 0 {
		return truncate([]rune(c.Text+notice), limit)
	}
	return truncate([]rune(c.Text), room) + notice
}

func truncate(r []rune, n int) string {
	switch {
	case len(r) <= n:
		return string(r)
	case n < 3:
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// Role is a mentionable group on a platform.
type Role struct {
	ID          string
	Name        string
	Mentionable bool
}

// Messenger sends messages and manages role mentionability.
type Messenger interface {
	SendMessage(ctx context.Context, dest model.Destination, content Content) error
	SetRoleMentionable(ctx context.Context, dest model.Destination, roleIDs []string, mentionable bool) error
	GetRoles(ctx context.Context, dest model.Destination) ([]Role, error)
}

// WebhookLister lists the webhook ids that exist on a channel.
type WebhookLister interface {
	ChannelWebhooks(ctx context.Context, dest model.Destination) ([]string, error)
}

// Client is a full platform client.
type Client interface {
	Messenger
	WebhookLister
}

// Mux routes operations to the client registered for a destination's platform.
type Mux struct {
	clients map[model.Platform]Client
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{clients: make(map[model.Platform]Client)}
}

// Register adds the client serving a platform.
func (m *Mux) Register(p model.Platform, c Client) {
	m.clients[p] = c
}

// Platforms reports how many platforms are registered.
func (m *Mux) Platforms() int {
	return len(m.clients)
}

func (m *Mux) client(dest model.Destination) (Client, error) {
	c, ok := m.clients[dest.Platform]
	if !ok {
		return nil, fmt.Errorf("platform %q: %w", dest.Platform, ErrUnsupported)
	}
	return c, nil
}

// SendMessage implements Messenger.
func (m *Mux) SendMessage(ctx context.Context, dest model.Destination, content Content) error {
	c, err := m.client(dest)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, dest, content)
}

// SetRoleMentionable implements Messenger.
func (m *Mux) SetRoleMentionable(ctx context.Context, dest model.Destination, roleIDs []string, mentionable bool) error {
	c, err := m.client(dest)
	if err != nil {
		return err
	}
	return c.SetRoleMentionable(ctx, dest, roleIDs, mentionable)
}

// GetRoles implements Messenger.
func (m *Mux) GetRoles(ctx context.Context, dest model.Destination) ([]Role, error) {
	c, err := m.client(dest)
	if err != nil {
		return nil, err
	}
	return c.GetRoles(ctx, dest)
}

// ChannelWebhooks implements WebhookLister.
func (m *Mux) ChannelWebhooks(ctx context.Context, dest model.Destination) ([]string, error) {
	c, err := m.client(dest)
	if err != nil {
		return nil, err
	}
	return c.ChannelWebhooks(ctx, dest)
}
