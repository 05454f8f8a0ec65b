package model

import (
	"fmt"
	"time"
)

// Platform identifies the chat platform a destination lives on.
type Platform string

// Supported platforms.
const (
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
)

// Webhook is a platform webhook used instead of posting as the bot.
type Webhook struct {
	ID    string
	Token string
}

// Destination identifies where messages of a connection are sent.
type Destination struct {
	Platform  Platform
	GuildID   string
	ChannelID string
	Webhook   *Webhook
}

// Key returns the identity used to order deliveries. Deliveries through a
// webhook share the ordering of the channel that owns the webhook.
func (d Destination) Key() string {
	return fmt.Sprintf("%s:%s", d.Platform, d.ChannelID)
}

// Connection is a configured destination of a feed with its delivery settings.
type Connection struct {
	ID                 int64
	FeedID             int64
	Name               string
	Destination        Destination
	Filters            *FilterExpression
	CustomPlaceholders []CustomPlaceholder
	Format             string
	MentionRoleIDs     []string
	AllowRoleMentions  bool
	IsActive           bool
	CreatedAt          time.Time
}

// NeedsMentionToggle reports whether messages of this connection must be
// bracketed by a role mentionability toggle. Only Discord has roles.
func (c *Connection) NeedsMentionToggle() bool {
	return c.Destination.Platform == PlatformDiscord && c.AllowRoleMentions && len(c.MentionRoleIDs) > 0
}

// StepType defines the kind of transformation a placeholder step applies.
type StepType string

// Supported placeholder step types.
const (
	StepRegex     StepType = "REGEX"
	StepUppercase StepType = "UPPERCASE"
	StepLowercase StepType = "LOWERCASE"
	StepURLEncode StepType = "URL_ENCODE"
)

// PlaceholderStep is one transformation applied to a placeholder value.
type PlaceholderStep struct {
	ID          string   `json:"id"`
	Type        StepType `json:"type,omitempty"`
	RegexSearch string   `json:"regexSearch,omitempty"`
	RegexFlags  string   `json:"regexSearchFlags,omitempty"`
	Replacement string   `json:"replacementString,omitempty"`
}

// CustomPlaceholder derives a new article value from a source field by
// threading it through its steps in order.
type CustomPlaceholder struct {
	ID            string            `json:"id"`
	ReferenceName string            `json:"referenceName"`
	SourceField   string            `json:"sourcePlaceholder"`
	Steps         []PlaceholderStep `json:"steps"`
}
