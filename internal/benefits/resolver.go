package benefits

import (
	"slices"
	"time"

	"rss_relay/internal/model"
)

// Source tags where the winning benefits of a profile came from.
type Source string

// Benefit sources.
const (
	SourceNone         Source = "none"
	SourceSubscription Source = "subscription"
	SourcePatron       Source = "patron"
	SourceManual       Source = "manual"
)

// RateLimit is one article quota window.
type RateLimit struct {
	Max    int
	Window time.Duration
}

// UserFeedsComposition splits the user feed limit into its parts.
type UserFeedsComposition struct {
	Base   int
	Legacy int
}

// SubscriptionSummary identifies the subscription a profile was built from.
type SubscriptionSummary struct {
	ProductKey string
	Status     model.SubscriptionStatus
}

// Profile is the resolved set of limits and flags for an account.
type Profile struct {
	IsSupporter             bool
	Source                  Source
	MaxFeeds                int
	MaxGuilds               int
	Guilds                  []string
	ExpireAt                *time.Time
	RefreshRateSeconds      int
	MaxDailyArticles        int
	MaxUserFeeds            int
	MaxUserFeedsComposition UserFeedsComposition
	AllowCustomPlaceholders bool
	AllowExternalProperties bool
	AllowWebhooks           bool
	ArticleRateLimits       []RateLimit
	Subscription            *SubscriptionSummary
	MaxPatreonPledge        int
}

// RefreshInterval returns the refresh rate as a duration.
func (p Profile) RefreshInterval() time.Duration {
	return time.Duration(p.RefreshRateSeconds) * time.Second
}

// Resolver computes benefit profiles. It performs no I/O.
type Resolver struct {
	policy Policy
}

// NewResolver creates a Resolver for the given policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Policy returns the policy the resolver applies.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve computes the profile of an account at the given time.
//
// Per field precedence is subscription, then patron, then manual grant,
// then defaults. Max feeds, max guilds and max user feeds take the highest
// value across sources, and the legacy override is added on top of the
// user feed base.
func (r *Resolver) Resolve(rec model.AccountRecords, now time.Time) Profile {
	p := r.policy

	legacy := 0
	if rec.Override != nil {
		legacy = rec.Override.AdditionalUserFeeds
	}

	if !p.EnableSupporters {
		return Profile{
			IsSupporter:             true,
			Source:                  SourceNone,
			MaxFeeds:                p.DefaultMaxFeeds,
			RefreshRateSeconds:      p.DefaultRefreshRateSeconds,
			MaxDailyArticles:        p.MaxDailyArticlesDefault,
			MaxUserFeeds:            p.DefaultMaxUserFeeds,
			MaxUserFeedsComposition: UserFeedsComposition{Base: p.DefaultMaxUserFeeds},
			AllowCustomPlaceholders: true,
			AllowExternalProperties: true,
			AllowWebhooks:           true,
			ArticleRateLimits:       dailyLimits(p.MaxDailyArticlesDefault),
		}
	}

	s := rec.Supporter
	if s == nil || !r.IsValidSupporter(s, rec.Patrons, now) {
		prof := r.defaultProfile(legacy)
		if s != nil {
			prof.Guilds = slices.Clone(s.Guilds)
			prof.ExpireAt = s.ExpireAt
		}
		return prof
	}

	patrons := p.MaxFromPatrons(rec.Patrons, now)
	fromPatrons := s.Patron && len(rec.Patrons) > 0
	sub := liveSubscription(s, now)

	refresh := p.SupporterRefreshRateSeconds
	switch {
	case sub != nil:
		refresh = orDefault(sub.Benefits.RefreshRateSeconds, p.DefaultRefreshRateSeconds)
	case s.SlowRate:
		refresh = p.DefaultRefreshRateSeconds
	case fromPatrons:
		refresh = p.DefaultRefreshRateSeconds
		if patrons.ExistsAndIsValid {
			refresh = orDefault(patrons.RefreshRateSeconds, p.DefaultRefreshRateSeconds)
		}
	}

	var customPlaceholders, externalProperties bool
	switch {
	case sub != nil:
		customPlaceholders = true
		externalProperties = sub.ProductKey != model.ProductFree && sub.ProductKey != model.ProductTier1
	case fromPatrons && patrons.ExistsAndIsValid:
		customPlaceholders = patrons.AllowCustomPlaceholders
		externalProperties = patrons.MaxPledge > p.ExternalPropertiesMinPledge
	}

	base := p.DefaultMaxUserFeeds
	switch {
	case sub != nil && sub.Benefits.MaxUserFeeds > 0:
		base = sub.Benefits.MaxUserFeeds
	case s.MaxUserFeeds != nil:
		base = *s.MaxUserFeeds
	}
	base = max(base, patrons.MaxUserFeeds)

	daily := p.MaxDailyArticlesSupporter
	switch {
	case sub != nil:
		daily = orDefault(sub.Benefits.DailyArticleLimit, p.MaxDailyArticlesSupporter)
	case fromPatrons && !patrons.ExistsAndIsValid:
		daily = p.MaxDailyArticlesDefault
	}

	source := SourceManual
	var summary *SubscriptionSummary
	switch {
	case sub != nil:
		source = SourceSubscription
		summary = &SubscriptionSummary{ProductKey: sub.ProductKey, Status: sub.Status}
	case fromPatrons && patrons.ExistsAndIsValid:
		source = SourcePatron
	}

	webhooks := true
	if sub != nil {
		webhooks = sub.Benefits.AllowWebhooks
	}

	return Profile{
		IsSupporter:             !fromPatrons || patrons.ExistsAndIsValid,
		Source:                  source,
		MaxFeeds:                max(intOr(s.MaxFeeds, p.DefaultMaxFeeds), patrons.MaxFeeds),
		MaxGuilds:               max(intOr(s.MaxGuilds, 1), patrons.MaxGuilds),
		Guilds:                  slices.Clone(s.Guilds),
		ExpireAt:                s.ExpireAt,
		RefreshRateSeconds:      refresh,
		MaxDailyArticles:        daily,
		MaxUserFeeds:            base + legacy,
		MaxUserFeedsComposition: UserFeedsComposition{Base: base, Legacy: legacy},
		AllowCustomPlaceholders: s.AllowCustomPlaceholders || customPlaceholders,
		AllowExternalProperties: externalProperties,
		AllowWebhooks:           webhooks,
		ArticleRateLimits:       dailyLimits(daily),
		Subscription:            summary,
		MaxPatreonPledge:        patrons.MaxPledge,
	}
}

// IsValidSupporter reports whether a supporter record grants any benefits:
// an active subscription, an unexpired manual grant, or a valid patron. A
// past due or cancelled subscription only contributes benefits once one of
// those makes the supporter valid.
func (r *Resolver) IsValidSupporter(s *model.Supporter, patrons []model.Patron, now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Subscription != nil && s.Subscription.Status == model.SubscriptionActive {
		return true
	}
	if s.ExpireAt != nil && s.ExpireAt.After(now) {
		return true
	}
	for _, pt := range patrons {
		if r.policy.IsValidPatron(pt, now) {
			return true
		}
	}
	return false
}

func (r *Resolver) defaultProfile(legacy int) Profile {
	p := r.policy
	return Profile{
		Source:                  SourceNone,
		MaxFeeds:                p.DefaultMaxFeeds,
		RefreshRateSeconds:      p.DefaultRefreshRateSeconds,
		MaxDailyArticles:        p.MaxDailyArticlesDefault,
		MaxUserFeeds:            p.DefaultMaxUserFeeds + legacy,
		MaxUserFeedsComposition: UserFeedsComposition{Base: p.DefaultMaxUserFeeds, Legacy: legacy},
		ArticleRateLimits:       dailyLimits(p.MaxDailyArticlesDefault),
	}
}

// liveSubscription returns the supporter's subscription when it has not
// expired: it is active or past due, or it was cancelled but the paid
// period has not ended.
func liveSubscription(s *model.Supporter, now time.Time) *model.Subscription {
	sub := s.Subscription
	if sub == nil {
		return nil
	}
	switch sub.Status {
	case model.SubscriptionActive, model.SubscriptionPastDue:
		return sub
	}
	if sub.BillingPeriodEnd != nil && sub.BillingPeriodEnd.After(now) && sub.Status != model.SubscriptionPaused {
		return sub
	}
	return nil
}

func dailyLimits(maxArticles int) []RateLimit {
	return []RateLimit{{Max: maxArticles, Window: DailyWindow}}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
