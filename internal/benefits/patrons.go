package benefits

import (
	"time"

	"github.com/samber/lo"

	"rss_relay/internal/model"
)

// PatronBenefits is the best benefit set across an account's patron records.
type PatronBenefits struct {
	ExistsAndIsValid        bool
	MaxFeeds                int
	MaxUserFeeds            int
	MaxGuilds               int
	RefreshRateSeconds      int
	AllowCustomPlaceholders bool
	MaxPledge               int
}

// IsValidPatron reports whether a patron record currently grants benefits.
// Active patrons qualify while their pledge is above the floor; declined or
// former patrons keep benefits for a grace period after their last charge.
func (p Policy) IsValidPatron(patron model.Patron, now time.Time) bool {
	if patron.EffectivePledge() < p.PatronMinPledge {
		return false
	}
	switch patron.Status {
	case model.PatronActive:
		return true
	case model.PatronDeclined, model.PatronFormer:
		if patron.LastCharge == nil {
			return false
		}
		grace := time.Duration(p.PatronGraceDays) * 24 * time.Hour
		return now.Sub(*patron.LastCharge) < grace
	}
	return false
}

// MaxFromPatrons merges every valid patron record, keeping the highest
// limit per field and the fastest refresh rate.
func (p Policy) MaxFromPatrons(patrons []model.Patron, now time.Time) PatronBenefits {
	out := PatronBenefits{
		MaxFeeds:     p.DefaultMaxFeeds,
		MaxUserFeeds: p.DefaultMaxUserFeeds,
	}

	valid := lo.Filter(patrons, func(pt model.Patron, _ int) bool {
		return p.IsValidPatron(pt, now)
	})
	if len(valid) == 0 {
		return out
	}
	out.ExistsAndIsValid = true
	out.MaxPledge = lo.Max(lo.Map(valid, func(pt model.Patron, _ int) int {
		return pt.EffectivePledge()
	}))

	for _, pt := range valid {
		tier, ok := p.tierFor(pt.EffectivePledge())
		if !ok {
			continue
		}
		out.MaxFeeds = max(out.MaxFeeds, tier.MaxFeeds)
		out.MaxUserFeeds = max(out.MaxUserFeeds, tier.MaxUserFeeds)
		out.MaxGuilds = max(out.MaxGuilds, tier.MaxGuilds)
		out.AllowCustomPlaceholders = out.AllowCustomPlaceholders || tier.AllowCustomPlaceholders
		if tier.RefreshRateSeconds > 0 && (out.RefreshRateSeconds == 0 || tier.RefreshRateSeconds < out.RefreshRateSeconds) {
			out.RefreshRateSeconds = tier.RefreshRateSeconds
		}
	}
	return out
}
