// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"rss_relay/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateFeed(ctx context.Context, feed *model.Feed) error
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
	ListFeeds(ctx context.Context, accountID string) ([]model.Feed, error)
	ListDueFeeds(ctx context.Context) ([]model.Feed, error)
	UpdateFeed(ctx context.Context, feed *model.Feed) error
	DeleteFeed(ctx context.Context, id int64) error

	CreateConnection(ctx context.Context, c *model.Connection) error
	GetConnection(ctx context.Context, id int64) (*model.Connection, error)
	ListConnections(ctx context.Context, feedID int64) ([]model.Connection, error)
	ListWebhookConnections(ctx context.Context) ([]model.Connection, error)
	UpdateConnection(ctx context.Context, c *model.Connection) error
	DeleteConnection(ctx context.Context, id int64) error
	ClearWebhook(ctx context.Context, connectionID int64) error

	SaveSupporter(ctx context.Context, s *model.Supporter) error
	SavePatron(ctx context.Context, p *model.Patron) error
	SaveOverride(ctx context.Context, o *model.UserFeedLimitOverride) error
	SaveGuildSubscription(ctx context.Context, g *model.GuildSubscription) error
	GetAccountRecords(ctx context.Context, accountID string) (model.AccountRecords, error)
	SupportersOfGuild(ctx context.Context, guildID string) ([]model.AccountRecords, error)
	GetGuildSubscription(ctx context.Context, guildID string) (*model.GuildSubscription, error)

	MarkSeen(ctx context.Context, feedID int64, guid string) error
	IsSeen(ctx context.Context, feedID int64, guid string) (bool, error)
	PruneSeen(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
