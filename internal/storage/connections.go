package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rss_relay/internal/filter"
	"rss_relay/internal/model"
	"rss_relay/internal/placeholder"
)

const connectionColumns = `id, feed_id, name, platform, guild_id, channel_id, webhook_id, webhook_token,
	filters, custom_placeholders, format, mention_role_ids, allow_role_mentions, is_active, created_at`

// connectionRow holds the encoded column values of a connection.
type connectionRow struct {
	webhookID    *string
	webhookToken *string
	filters      *string
	placeholders string
	roles        string
}

func encodeConnection(c *model.Connection) (connectionRow, error) {
	var row connectionRow
	if err := filter.Validate(c.Filters); err != nil {
		return row, fmt.Errorf("validate filters: %w", err)
	}
	for _, p := range c.CustomPlaceholders {
		if err := placeholder.Validate(p); err != nil {
			return row, fmt.Errorf("validate placeholder %q: %w", p.ReferenceName, err)
		}
	}
	if c.Destination.Webhook != nil {
		row.webhookID = &c.Destination.Webhook.ID
		row.webhookToken = &c.Destination.Webhook.Token
	}
	if c.Filters != nil {
		b, err := json.Marshal(c.Filters)
		if err != nil {
			return row, fmt.Errorf("encode filters: %w", err)
		}
		v := string(b)
		row.filters = &v
	}

	placeholders := c.CustomPlaceholders
	if placeholders == nil {
		placeholders = []model.CustomPlaceholder{}
	}
	b, err := json.Marshal(placeholders)
	if err != nil {
		return row, fmt.Errorf("encode placeholders: %w", err)
	}
	row.placeholders = string(b)

	roles := c.MentionRoleIDs
	if roles == nil {
		roles = []string{}
	}
	b, err = json.Marshal(roles)
	if err != nil {
		return row, fmt.Errorf("encode roles: %w", err)
	}
	row.roles = string(b)
	return row, nil
}

// CreateConnection inserts a new connection and populates its ID and CreatedAt.
func (s *SQLite) CreateConnection(ctx context.Context, c *model.Connection) error {
	row, err := encodeConnection(c)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO connections (feed_id, name, platform, guild_id, channel_id, webhook_id, webhook_token,
		     filters, custom_placeholders, format, mention_role_ids, allow_role_mentions, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.FeedID, c.Name, string(c.Destination.Platform), c.Destination.GuildID, c.Destination.ChannelID,
		row.webhookID, row.webhookToken, row.filters, row.placeholders, c.Format, row.roles,
		boolToInt(c.AllowRoleMentions), boolToInt(c.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetConnection returns a single connection by its ID.
func (s *SQLite) GetConnection(ctx context.Context, id int64) (*model.Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	return scanConnection(row)
}

// ListConnections returns the connections of a feed in creation order.
func (s *SQLite) ListConnections(ctx context.Context, feedID int64) ([]model.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE feed_id = ? ORDER BY id`, feedID,
	)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanConnections(rows)
}

// ListWebhookConnections returns every connection that delivers through a webhook.
func (s *SQLite) ListWebhookConnections(ctx context.Context) ([]model.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE webhook_id IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query webhook connections: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanConnections(rows)
}

// UpdateConnection persists changes to an existing connection.
func (s *SQLite) UpdateConnection(ctx context.Context, c *model.Connection) error {
	row, err := encodeConnection(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE connections SET name = ?, platform = ?, guild_id = ?, channel_id = ?, webhook_id = ?,
		     webhook_token = ?, filters = ?, custom_placeholders = ?, format = ?, mention_role_ids = ?,
		     allow_role_mentions = ?, is_active = ?
		 WHERE id = ?`,
		c.Name, string(c.Destination.Platform), c.Destination.GuildID, c.Destination.ChannelID,
		row.webhookID, row.webhookToken, row.filters, row.placeholders, c.Format, row.roles,
		boolToInt(c.AllowRoleMentions), boolToInt(c.IsActive), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	return nil
}

// DeleteConnection removes a connection by its ID.
func (s *SQLite) DeleteConnection(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// ClearWebhook drops the webhook of a connection so it posts to the channel
// directly again.
func (s *SQLite) ClearWebhook(ctx context.Context, connectionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE connections SET webhook_id = NULL, webhook_token = NULL WHERE id = ?`, connectionID,
	)
	if err != nil {
		return fmt.Errorf("clear webhook: %w", err)
	}
	return nil
}

func scanConnection(row scannable) (*model.Connection, error) {
	var c model.Connection
	var platform, placeholders, roles string
	var webhookID, webhookToken, filters, created sql.NullString
	var allowMentions, isActive int
	err := row.Scan(&c.ID, &c.FeedID, &c.Name, &platform, &c.Destination.GuildID, &c.Destination.ChannelID,
		&webhookID, &webhookToken, &filters, &placeholders, &c.Format, &roles, &allowMentions, &isActive, &created)
	if err != nil {
		return nil, notFound(err, "connection")
	}

	c.Destination.Platform = model.Platform(platform)
	if webhookID.Valid {
		c.Destination.Webhook = &model.Webhook{ID: webhookID.String, Token: webhookToken.String}
	}
	if filters.Valid && filters.String != "" {
		c.Filters = &model.FilterExpression{}
		if err := json.Unmarshal([]byte(filters.String), c.Filters); err != nil {
			return nil, fmt.Errorf("decode filters of connection %d: %w", c.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(placeholders), &c.CustomPlaceholders); err != nil {
		return nil, fmt.Errorf("decode placeholders of connection %d: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(roles), &c.MentionRoleIDs); err != nil {
		return nil, fmt.Errorf("decode roles of connection %d: %w", c.ID, err)
	}
	c.AllowRoleMentions = allowMentions == 1
	c.IsActive = isActive == 1
	if created.Valid {
		c.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &c, nil
}

func scanConnections(rows *sql.Rows) ([]model.Connection, error) {
	var out []model.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
