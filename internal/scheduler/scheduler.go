// Package scheduler polls due feeds and offers their new articles to every
// connection of the feed.
package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"rss_relay/internal/benefits"
	"rss_relay/internal/delivery"
	"rss_relay/internal/fetcher"
	"rss_relay/internal/model"
	"rss_relay/internal/storage"
)

// Deliverer offers one article to one connection.
type Deliverer interface {
	Deliver(ctx context.Context, accountID string, profile benefits.Profile, conn model.Connection, a model.Article) delivery.Outcome
}

// Flusher releases the deferred deliveries collected during a cycle.
type Flusher interface {
	FlushDeferred(ctx context.Context) int
}

// Scheduler periodically checks feeds and hands new articles to the
// delivery pipeline.
type Scheduler struct {
	store    storage.Storage
	fetcher  *fetcher.Fetcher
	resolver *benefits.Resolver
	pipeline Deliverer
	flusher  Flusher
	log      *slog.Logger
	tick     time.Duration
	now      func() time.Time
}

// New creates a Scheduler with the default HTTP client.
func New(store storage.Storage, resolver *benefits.Resolver, pipeline Deliverer, flusher Flusher, log *slog.Logger) *Scheduler {
	return NewWithFetcher(store, fetcher.New(http.DefaultClient), resolver, pipeline, flusher, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store storage.Storage, f *fetcher.Fetcher, resolver *benefits.Resolver, pipeline Deliverer, flusher Flusher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		fetcher:  f,
		resolver: resolver,
		pipeline: pipeline,
		flusher:  flusher,
		log:      log,
		tick:     1 * time.Minute,
		now:      time.Now,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	feeds, err := s.store.ListDueFeeds(ctx)
	if err != nil {
		s.log.Error("list due feeds", "error", err)
		return
	}

	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		s.processFeed(ctx, feed)
	}

	// Flush even when the cycle was interrupted.
	if n := s.flusher.FlushDeferred(ctx); n > 0 {
		s.log.Debug("flushed deferred deliveries", "channels", n)
	}
}

type feedStats struct {
	fresh    int
	outcomes map[delivery.Outcome]int
}

func (s *Scheduler) processFeed(ctx context.Context, feed model.Feed) {
	now := s.now().UTC()

	rec, err := s.store.GetAccountRecords(ctx, feed.AccountID)
	if err != nil {
		s.log.Error("load account records", "feed_id", feed.ID, "account_id", feed.AccountID, "error", err)
		rec = model.AccountRecords{AccountID: feed.AccountID}
	}
	profile := s.resolver.Resolve(rec, now)

	if feed.LastCheckAt != nil && now.Sub(*feed.LastCheckAt) < profile.RefreshInterval() {
		s.log.Debug("feed refresh rate not elapsed", "feed_id", feed.ID, "refresh_seconds", profile.RefreshRateSeconds)
		return
	}

	conns, err := s.store.ListConnections(ctx, feed.ID)
	if err != nil {
		s.log.Error("list connections", "feed_id", feed.ID, "error", err)
		return
	}
	active := conns[:0]
	for _, c := range conns {
		if c.IsActive {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		s.updateLastCheck(ctx, &feed, now)
		return
	}

	s.log.Debug("checking feed", "feed_id", feed.ID, "name", feed.Name)

	res, err := s.fetcher.FetchArticles(ctx, feed.URL)
	if err != nil {
		s.log.Error("fetch feed", "feed_id", feed.ID, "url", feed.URL, "error", err)
		s.updateLastCheck(ctx, &feed, now)
		return
	}

	stats := feedStats{outcomes: make(map[delivery.Outcome]int)}
	for _, article := range res.Articles {
		if ctx.Err() != nil {
			return
		}
		id := article.ID()
		seen, err := s.store.IsSeen(ctx, feed.ID, id)
		if err != nil {
			s.log.Error("check seen", "feed_id", feed.ID, "guid", id, "error", err)
			continue
		}
		if seen {
			continue
		}
		if feed.Name != "" {
			article = article.With(map[string]string{model.FieldFeedTitle: feed.Name})
		}

		stats.fresh++
		for _, conn := range active {
			stats.outcomes[s.pipeline.Deliver(ctx, feed.AccountID, profile, conn, article)]++
		}

		if err := s.store.MarkSeen(ctx, feed.ID, id); err != nil {
			s.log.Error("mark seen", "feed_id", feed.ID, "guid", id, "error", err)
		}
	}

	if stats.fresh > 0 {
		s.log.Info("processed feed",
			"feed_id", feed.ID,
			"name", feed.Name,
			"articles", stats.fresh,
			"queued", stats.outcomes[delivery.OutcomeQueued],
			"deferred", stats.outcomes[delivery.OutcomeDeferred],
			"filtered", stats.outcomes[delivery.OutcomeFiltered],
			"rate_limited", stats.outcomes[delivery.OutcomeRateLimited],
		)
	}

	s.updateLastCheck(ctx, &feed, now)
}

func (s *Scheduler) updateLastCheck(ctx context.Context, feed *model.Feed, now time.Time) {
	feed.LastCheckAt = &now
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		s.log.Error("update last check", "feed_id", feed.ID, "error", err)
	}
}
