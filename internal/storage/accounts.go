package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"rss_relay/internal/model"
)

// SaveSupporter inserts or replaces a supporter and its subscription.
func (s *SQLite) SaveSupporter(ctx context.Context, sup *model.Supporter) error {
	guilds := sup.Guilds
	if guilds == nil {
		guilds = []string{}
	}
	guildsJSON, err := json.Marshal(guilds)
	if err != nil {
		return fmt.Errorf("encode guilds: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO supporters (account_id, patron, expire_at, max_feeds, max_guilds, max_user_feeds,
		     slow_rate, allow_custom_placeholders, guilds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sup.AccountID, boolToInt(sup.Patron), formatTime(sup.ExpireAt), sup.MaxFeeds, sup.MaxGuilds, sup.MaxUserFeeds,
		boolToInt(sup.SlowRate), boolToInt(sup.AllowCustomPlaceholders), string(guildsJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert supporter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM supporter_subscriptions WHERE account_id = ?`, sup.AccountID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if sub := sup.Subscription; sub != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO supporter_subscriptions (account_id, product_key, status, billing_period_end,
			     refresh_rate_seconds, max_user_feeds, daily_article_limit, allow_webhooks)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sup.AccountID, sub.ProductKey, string(sub.Status), formatTime(sub.BillingPeriodEnd),
			sub.Benefits.RefreshRateSeconds, sub.Benefits.MaxUserFeeds, sub.Benefits.DailyArticleLimit,
			boolToInt(sub.Benefits.AllowWebhooks),
		)
		if err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
	}
	return tx.Commit()
}

// SavePatron inserts or replaces a patron record.
func (s *SQLite) SavePatron(ctx context.Context, p *model.Patron) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO patrons (id, account_id, status, pledge, pledge_lifetime, pledge_override, last_charge)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AccountID, string(p.Status), p.Pledge, p.PledgeLifetime, p.PledgeOverride, formatTime(p.LastCharge),
	)
	if err != nil {
		return fmt.Errorf("upsert patron: %w", err)
	}
	return nil
}

// SaveOverride inserts or replaces the legacy user feed allowance of an account.
func (s *SQLite) SaveOverride(ctx context.Context, o *model.UserFeedLimitOverride) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_feed_limit_overrides (account_id, additional_user_feeds) VALUES (?, ?)`,
		o.AccountID, o.AdditionalUserFeeds,
	)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// SaveGuildSubscription inserts or replaces a guild subscription.
func (s *SQLite) SaveGuildSubscription(ctx context.Context, g *model.GuildSubscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO guild_subscriptions (guild_id, max_feeds, refresh_rate_seconds) VALUES (?, ?, ?)`,
		g.GuildID, g.MaxFeeds, g.RefreshRateSeconds,
	)
	if err != nil {
		return fmt.Errorf("upsert guild subscription: %w", err)
	}
	return nil
}

// GetGuildSubscription returns the subscription of a guild, or nil when the
// guild has none.
func (s *SQLite) GetGuildSubscription(ctx context.Context, guildID string) (*model.GuildSubscription, error) {
	var g model.GuildSubscription
	err := s.db.QueryRowContext(ctx,
		`SELECT guild_id, max_feeds, refresh_rate_seconds FROM guild_subscriptions WHERE guild_id = ?`, guildID,
	).Scan(&g.GuildID, &g.MaxFeeds, &g.RefreshRateSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan guild subscription: %w", err)
	}
	return &g, nil
}

// GetAccountRecords loads every benefit source of an account. Missing
// records are left empty.
func (s *SQLite) GetAccountRecords(ctx context.Context, accountID string) (model.AccountRecords, error) {
	rec := model.AccountRecords{AccountID: accountID}

	sup, err := s.getSupporter(ctx, accountID)
	if err != nil {
		return rec, err
	}
	rec.Supporter = sup

	if rec.Patrons, err = s.listPatrons(ctx, accountID); err != nil {
		return rec, err
	}

	var extra int
	err = s.db.QueryRowContext(ctx,
		`SELECT additional_user_feeds FROM user_feed_limit_overrides WHERE account_id = ?`, accountID,
	).Scan(&extra)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return rec, fmt.Errorf("scan override: %w", err)
	default:
		rec.Override = &model.UserFeedLimitOverride{AccountID: accountID, AdditionalUserFeeds: extra}
	}
	return rec, nil
}

// SupportersOfGuild returns the records of every supporter that assigned
// the guild.
func (s *SQLite) SupportersOfGuild(ctx context.Context, guildID string) ([]model.AccountRecords, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id FROM supporters
		 WHERE EXISTS (SELECT 1 FROM json_each(supporters.guilds) WHERE json_each.value = ?)
		 ORDER BY account_id`, guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query guild supporters: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan supporter id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	out := make([]model.AccountRecords, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetAccountRecords(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLite) getSupporter(ctx context.Context, accountID string) (*model.Supporter, error) {
	var sup model.Supporter
	var patron, slowRate, allowPlaceholders int
	var expireAt sql.NullString
	var maxFeeds, maxGuilds, maxUserFeeds sql.NullInt64
	var guilds string
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, patron, expire_at, max_feeds, max_guilds, max_user_feeds, slow_rate,
		     allow_custom_placeholders, guilds
		 FROM supporters WHERE account_id = ?`, accountID,
	).Scan(&sup.AccountID, &patron, &expireAt, &maxFeeds, &maxGuilds, &maxUserFeeds, &slowRate, &allowPlaceholders, &guilds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan supporter: %w", err)
	}

	sup.Patron = patron == 1
	sup.SlowRate = slowRate == 1
	sup.AllowCustomPlaceholders = allowPlaceholders == 1
	sup.ExpireAt = parseTime(expireAt)
	sup.MaxFeeds = nullInt(maxFeeds)
	sup.MaxGuilds = nullInt(maxGuilds)
	sup.MaxUserFeeds = nullInt(maxUserFeeds)
	if err := json.Unmarshal([]byte(guilds), &sup.Guilds); err != nil {
		return nil, fmt.Errorf("decode guilds of %s: %w", accountID, err)
	}

	var sub model.Subscription
	var status string
	var periodEnd sql.NullString
	var webhooks int
	err = s.db.QueryRowContext(ctx,
		`SELECT product_key, status, billing_period_end, refresh_rate_seconds, max_user_feeds,
		     daily_article_limit, allow_webhooks
		 FROM supporter_subscriptions WHERE account_id = ?`, accountID,
	).Scan(&sub.ProductKey, &status, &periodEnd, &sub.Benefits.RefreshRateSeconds, &sub.Benefits.MaxUserFeeds,
		&sub.Benefits.DailyArticleLimit, &webhooks)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("scan subscription: %w", err)
	default:
		sub.Status = model.SubscriptionStatus(status)
		sub.BillingPeriodEnd = parseTime(periodEnd)
		sub.Benefits.AllowWebhooks = webhooks == 1
		sup.Subscription = &sub
	}
	return &sup, nil
}

func (s *SQLite) listPatrons(ctx context.Context, accountID string) ([]model.Patron, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, status, pledge, pledge_lifetime, pledge_override, last_charge
		 FROM patrons WHERE account_id = ? ORDER BY id`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query patrons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Patron
	for rows.Next() {
		var p model.Patron
		var status string
		var override sql.NullInt64
		var lastCharge sql.NullString
		if err := rows.Scan(&p.ID, &p.AccountID, &status, &p.Pledge, &p.PledgeLifetime, &override, &lastCharge); err != nil {
			return nil, fmt.Errorf("scan patron: %w", err)
		}
		p.Status = model.PatronStatus(status)
		p.PledgeOverride = nullInt(override)
		p.LastCharge = parseTime(lastCharge)
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
