// Package benefits resolves the effective limits and feature flags of an
// account from its subscription, patron, manual and override records.
package benefits

import "time"

// DailyWindow is the length of the article quota window.
const DailyWindow = 24 * time.Hour

// PatronTier maps a minimum pledge (in cents) to the benefits it grants.
type PatronTier struct {
	MinPledge               int  `yaml:"min_pledge"`
	MaxFeeds                int  `yaml:"max_feeds"`
	MaxUserFeeds            int  `yaml:"max_user_feeds"`
	MaxGuilds               int  `yaml:"max_guilds"`
	RefreshRateSeconds      int  `yaml:"refresh_rate_seconds"`
	AllowCustomPlaceholders bool `yaml:"allow_custom_placeholders"`
}

// Policy holds the numbers the resolver falls back to and the patron tier table.
type Policy struct {
	EnableSupporters            bool         `yaml:"enable_supporters"`
	DefaultMaxFeeds             int          `yaml:"default_max_feeds"`
	DefaultRefreshRateSeconds   int          `yaml:"default_refresh_rate_seconds"`
	SupporterRefreshRateSeconds int          `yaml:"supporter_refresh_rate_seconds"`
	DefaultMaxUserFeeds         int          `yaml:"default_max_user_feeds"`
	MaxDailyArticlesDefault     int          `yaml:"max_daily_articles_default"`
	MaxDailyArticlesSupporter   int          `yaml:"max_daily_articles_supporter"`
	ExternalPropertiesMinPledge int          `yaml:"external_properties_min_pledge"`
	PatronMinPledge             int          `yaml:"patron_min_pledge"`
	PatronGraceDays             int          `yaml:"patron_grace_days"`
	PatronTiers                 []PatronTier `yaml:"patron_tiers"`
}

// DefaultPolicy returns the policy used when no configuration overrides it.
func DefaultPolicy() Policy {
	return Policy{
		EnableSupporters:            true,
		DefaultMaxFeeds:             5,
		DefaultRefreshRateSeconds:   600,
		SupporterRefreshRateSeconds: 120,
		DefaultMaxUserFeeds:         5,
		MaxDailyArticlesDefault:     50,
		MaxDailyArticlesSupporter:   500,
		ExternalPropertiesMinPledge: 10000,
		PatronMinPledge:             1,
		PatronGraceDays:             4,
		PatronTiers: []PatronTier{
			{MinPledge: 2000, MaxFeeds: 140, MaxUserFeeds: 140, MaxGuilds: 15, RefreshRateSeconds: 120, AllowCustomPlaceholders: true},
			{MinPledge: 1000, MaxFeeds: 70, MaxUserFeeds: 70, MaxGuilds: 4, RefreshRateSeconds: 120, AllowCustomPlaceholders: true},
			{MinPledge: 500, MaxFeeds: 35, MaxUserFeeds: 35, MaxGuilds: 3, RefreshRateSeconds: 120, AllowCustomPlaceholders: true},
			{MinPledge: 250, MaxFeeds: 15, MaxUserFeeds: 15, MaxGuilds: 1},
		},
	}
}

// tierFor returns the best tier a pledge qualifies for.
func (p Policy) tierFor(pledge int) (PatronTier, bool) {
	var best PatronTier
	found := false
	for _, t := range p.PatronTiers {
		if pledge >= t.MinPledge && (!found || t.MinPledge > best.MinPledge) {
			best = t
			found = true
		}
	}
	return best, found
}
