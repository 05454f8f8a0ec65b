package delivery

import (
	"context"
	"log/slog"

	"rss_relay/internal/benefits"
	"rss_relay/internal/filter"
	"rss_relay/internal/model"
	"rss_relay/internal/placeholder"
)

// Outcome is the result of offering an article to a connection.
type Outcome int

// Delivery outcomes.
const (
	OutcomeFiltered Outcome = iota
	OutcomeRateLimited
	OutcomeQueued
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFiltered:
		return "filtered"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeQueued:
		return "queued"
	case OutcomeDeferred:
		return "deferred"
	}
	return "unknown"
}

// Admitter decides whether an account may receive another article.
type Admitter interface {
	Admit(accountID string, profile benefits.Profile) bool
	Remaining(accountID string, profile benefits.Profile) int
}

// Pipeline runs an article through filtering, custom placeholders and
// the account quota before handing it to the Manager.
type Pipeline struct {
	limiter Admitter
	manager *Manager
	log     *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(limiter Admitter, manager *Manager, log *slog.Logger) *Pipeline {
	return &Pipeline{limiter: limiter, manager: manager, log: log}
}

// Deliver offers an article to a connection owned by accountID.
func (p *Pipeline) Deliver(ctx context.Context, accountID string, profile benefits.Profile, conn model.Connection, a model.Article) Outcome {
	if !filter.Passes(conn.Filters, a) {
		return OutcomeFiltered
	}

	if profile.AllowCustomPlaceholders && len(conn.CustomPlaceholders) > 0 {
		enriched, err := placeholder.Inject(a, conn.CustomPlaceholders)
		if err != nil {
			p.log.Warn("custom placeholders", "connection_id", conn.ID, "article", a.ID(), "error", err)
		}
		a = enriched
	}

	if !p.limiter.Admit(accountID, profile) {
		p.log.Debug("article over daily limit", "account_id", accountID, "connection_id", conn.ID, "article", a.ID())
		return OutcomeRateLimited
	}

	t := NewTask(accountID, conn, a)
	p.log.Debug("article admitted",
		"account_id", accountID,
		"connection_id", conn.ID,
		"task_id", t.ID,
		"quota_remaining", p.limiter.Remaining(accountID, profile),
	)
	p.manager.Enqueue(ctx, t)
	if t.Deferred() {
		return OutcomeDeferred
	}
	return OutcomeQueued
}
