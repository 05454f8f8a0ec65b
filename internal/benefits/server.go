package benefits

import (
	"time"

	"rss_relay/internal/model"
)

// ServerBenefits are the limits of a guild, derived from a guild
// subscription or from the supporters that assigned the guild.
type ServerBenefits struct {
	ServerID           string
	HasSupporter       bool
	MaxFeeds           int
	Webhooks           bool
	RefreshRateSeconds int
}

// ResolveServer computes the benefits of a guild. A guild subscription wins
// outright; otherwise the highest max feeds across supporters applies and
// webhooks are allowed if any supporter allows them. With supporters
// disabled every guild may use webhooks.
func (r *Resolver) ResolveServer(serverID string, sub *model.GuildSubscription, supporters []model.AccountRecords, now time.Time) ServerBenefits {
	if sub != nil {
		return ServerBenefits{
			ServerID:           serverID,
			HasSupporter:       true,
			MaxFeeds:           sub.MaxFeeds,
			Webhooks:           true,
			RefreshRateSeconds: sub.RefreshRateSeconds,
		}
	}

	if !r.policy.EnableSupporters {
		return ServerBenefits{
			ServerID:           serverID,
			MaxFeeds:           r.policy.DefaultMaxFeeds,
			Webhooks:           true,
			RefreshRateSeconds: r.policy.DefaultRefreshRateSeconds,
		}
	}

	out := ServerBenefits{ServerID: serverID, MaxFeeds: r.policy.DefaultMaxFeeds}
	for _, rec := range supporters {
		if rec.Supporter == nil || !r.IsValidSupporter(rec.Supporter, rec.Patrons, now) {
			continue
		}
		prof := r.Resolve(rec, now)
		out.HasSupporter = out.HasSupporter || prof.IsSupporter
		out.MaxFeeds = max(out.MaxFeeds, prof.MaxFeeds)
		out.Webhooks = out.Webhooks || prof.AllowWebhooks
		if out.RefreshRateSeconds == 0 {
			out.RefreshRateSeconds = prof.RefreshRateSeconds
		}
	}
	return out
}
