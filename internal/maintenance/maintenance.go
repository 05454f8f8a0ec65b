// Package maintenance runs periodic cleanup of stored delivery state.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rss_relay/internal/benefits"
	"rss_relay/internal/model"
	"rss_relay/internal/platform"
)

// DefaultSeenRetention is how long processed item ids are remembered.
const DefaultSeenRetention = 30 * 24 * time.Hour

// Store is the persistence used by the cleanup jobs.
type Store interface {
	ListWebhookConnections(ctx context.Context) ([]model.Connection, error)
	ClearWebhook(ctx context.Context, connectionID int64) error
	GetGuildSubscription(ctx context.Context, guildID string) (*model.GuildSubscription, error)
	SupportersOfGuild(ctx context.Context, guildID string) ([]model.AccountRecords, error)
	PruneSeen(ctx context.Context, before time.Time) (int64, error)
}

// QuotaPruner forgets article quota windows of idle accounts.
type QuotaPruner interface {
	Prune(idle time.Duration) int
}

// Maintainer prunes webhook references, old seen items and idle quotas.
type Maintainer struct {
	store         Store
	lister        platform.WebhookLister
	resolver      *benefits.Resolver
	quotas        QuotaPruner
	log           *slog.Logger
	seenRetention time.Duration
	now           func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Maintainer.
func New(store Store, lister platform.WebhookLister, resolver *benefits.Resolver, log *slog.Logger) *Maintainer {
	return &Maintainer{
		store:         store,
		lister:        lister,
		resolver:      resolver,
		log:           log,
		seenRetention: DefaultSeenRetention,
		now:           time.Now,
	}
}

// SetSeenRetention overrides how long seen items are kept.
func (m *Maintainer) SetSeenRetention(d time.Duration) {
	m.seenRetention = d
}

// SetQuotaPruner makes RunOnce also drop quota windows of accounts idle
// for longer than a daily window.
func (m *Maintainer) SetQuotaPruner(p QuotaPruner) {
	m.quotas = p
}

// PruneWebhooks clears the webhook of every connection whose webhook no
// longer exists, whose channel the bot cannot inspect, or whose guild lost
// webhook benefits. It returns the number of cleared connections.
func (m *Maintainer) PruneWebhooks(ctx context.Context) (int, error) {
	conns, err := m.store.ListWebhookConnections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list webhook connections: %w", err)
	}

	now := m.now()
	allowed := make(map[string]bool)
	hooks := make(map[string][]string)
	listErrs := make(map[string]error)
	cleared := 0

	for _, conn := range conns {
		if ctx.Err() != nil {
			return cleared, ctx.Err()
		}
		dest := conn.Destination

		if guild := dest.GuildID; dest.Platform == model.PlatformDiscord && guild != "" {
			ok, seen := allowed[guild]
			if !seen {
				ok, err = m.guildAllowsWebhooks(ctx, guild, now)
				if err != nil {
					m.log.Error("resolve guild benefits", "guild_id", guild, "error", err)
					continue
				}
				allowed[guild] = ok
			}
			if !ok {
				if m.clear(ctx, conn, "no_benefits") {
					cleared++
				}
				continue
			}
		}

		key := dest.Key()
		ids, fetched := hooks[key]
		listErr := listErrs[key]
		if !fetched && listErr == nil {
			ids, listErr = m.lister.ChannelWebhooks(ctx, dest)
			if listErr != nil {
				listErrs[key] = listErr
			} else {
				hooks[key] = ids
			}
		}

		switch {
		case errors.Is(listErr, platform.ErrMissingPermissions):
			if m.clear(ctx, conn, "missing_permissions") {
				cleared++
			}
		case errors.Is(listErr, platform.ErrUnknownChannel):
			if m.clear(ctx, conn, "unknown_channel") {
				cleared++
			}
		case errors.Is(listErr, platform.ErrUnsupported):
			m.log.Debug("webhooks not supported", "connection_id", conn.ID, "platform", dest.Platform)
		case listErr != nil:
			m.log.Warn("list channel webhooks", "connection_id", conn.ID, "channel", key, "error", listErr)
		case !slices.Contains(ids, dest.Webhook.ID):
			if m.clear(ctx, conn, "missing_webhook") {
				cleared++
			}
		}
	}
	return cleared, nil
}

// PruneSeen forgets seen items older than the retention period.
func (m *Maintainer) PruneSeen(ctx context.Context) (int64, error) {
	return m.store.PruneSeen(ctx, m.now().Add(-m.seenRetention))
}

// RunOnce runs every cleanup job once, logging failures.
func (m *Maintainer) RunOnce(ctx context.Context) {
	cleared, err := m.PruneWebhooks(ctx)
	if err != nil {
		m.log.Error("prune webhooks", "error", err)
	} else if cleared > 0 {
		m.log.Info("pruned webhooks", "cleared", cleared)
	}

	pruned, err := m.PruneSeen(ctx)
	if err != nil {
		m.log.Error("prune seen items", "error", err)
	} else if pruned > 0 {
		m.log.Info("pruned seen items", "deleted", pruned)
	}

	if m.quotas != nil {
		if n := m.quotas.Prune(benefits.DailyWindow); n > 0 {
			m.log.Debug("pruned idle quotas", "accounts", n)
		}
	}
}

// Start schedules RunOnce with a standard five-field cron expression. Jobs
// receive ctx and stop being scheduled after Stop.
func (m *Maintainer) Start(ctx context.Context, schedule string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return errors.New("maintenance already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { m.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("add cron entry %q: %w", schedule, err)
	}
	c.Start()
	m.cron = c
	m.log.Info("maintenance scheduled", "schedule", schedule)
	return nil
}

// Stop stops scheduling jobs and waits for a running job to finish.
func (m *Maintainer) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (m *Maintainer) guildAllowsWebhooks(ctx context.Context, guildID string, now time.Time) (bool, error) {
	sub, err := m.store.GetGuildSubscription(ctx, guildID)
	if err != nil {
		return false, err
	}
	var supporters []model.AccountRecords
	if sub == nil {
		if supporters, err = m.store.SupportersOfGuild(ctx, guildID); err != nil {
			return false, err
		}
	}
	return m.resolver.ResolveServer(guildID, sub, supporters, now).Webhooks, nil
}

func (m *Maintainer) clear(ctx context.Context, conn model.Connection, reason string) bool {
	if err := m.store.ClearWebhook(ctx, conn.ID); err != nil {
		m.log.Error("clear webhook", "connection_id", conn.ID, "reason", reason, "error", err)
		return false
	}
	m.log.Info("cleared webhook", "connection_id", conn.ID, "webhook_id", conn.Destination.Webhook.ID, "reason", reason)
	return true
}
