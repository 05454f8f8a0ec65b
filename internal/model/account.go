package model

import "time"

// SubscriptionStatus is the billing state of a paid subscription.
type SubscriptionStatus string

// Subscription statuses.
const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionPaused    SubscriptionStatus = "PAUSED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription product keys.
const (
	ProductFree  = "free"
	ProductTier1 = "tier1"
	ProductTier2 = "tier2"
	ProductTier3 = "tier3"
)

// SubscriptionBenefits are the limits granted by a subscription product.
type SubscriptionBenefits struct {
	RefreshRateSeconds int
	MaxUserFeeds       int
	DailyArticleLimit  int
	AllowWebhooks      bool
}

// Subscription is a paid subscription attached to a supporter.
type Subscription struct {
	ProductKey       string
	Status           SubscriptionStatus
	BillingPeriodEnd *time.Time
	Benefits         SubscriptionBenefits
}

// PatronStatus is the pledge state reported for a patron.
type PatronStatus string

// Patron statuses.
const (
	PatronActive   PatronStatus = "active_patron"
	PatronDeclined PatronStatus = "declined_patron"
	PatronFormer   PatronStatus = "former_patron"
)

// Patron is a pledge record linked to an account.
type Patron struct {
	ID             string
	AccountID      string
	Status         PatronStatus
	Pledge         int
	PledgeLifetime int
	PledgeOverride *int
	LastCharge     *time.Time
}

// EffectivePledge returns the pledge override when set, otherwise the pledge.
func (p Patron) EffectivePledge() int {
	if p.PledgeOverride != nil {
		return *p.PledgeOverride
	}
	return p.Pledge
}

// Supporter is a manually granted or billing-backed benefit record.
type Supporter struct {
	AccountID               string
	Patron                  bool
	ExpireAt                *time.Time
	MaxFeeds                *int
	MaxGuilds               *int
	MaxUserFeeds            *int
	SlowRate                bool
	AllowCustomPlaceholders bool
	Guilds                  []string
	Subscription            *Subscription
}

// UserFeedLimitOverride adds legacy feed allowance on top of the base figure.
type UserFeedLimitOverride struct {
	AccountID           string
	AdditionalUserFeeds int
}

// GuildSubscription is a server-wide subscription.
type GuildSubscription struct {
	GuildID            string
	MaxFeeds           int
	RefreshRateSeconds int
}

// AccountRecords bundles every benefit source known for an account.
type AccountRecords struct {
	AccountID string
	Supporter *Supporter
	Patrons   []Patron
	Override  *UserFeedLimitOverride
}
