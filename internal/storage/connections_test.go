package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"rss_relay/internal/filter"
	"rss_relay/internal/model"
	"rss_relay/internal/placeholder"
)

func createTestFeed(t *testing.T, s *SQLite) model.Feed {
	t.Helper()
	feed := model.Feed{AccountID: "acc-1", Name: "F", URL: "https://f.com", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateFeed(context.Background(), &feed); err != nil {
		t.Fatalf("create feed: %v", err)
	}
	return feed
}

func TestConnectionCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := createTestFeed(t, s)

	tests := []struct {
		name string
		conn model.Connection
	}{
		{
			name: "telegram chat",
			conn: model.Connection{
				FeedID:      feed.ID,
				Name:        "news chat",
				Destination: model.Destination{Platform: model.PlatformTelegram, ChannelID: "-100123"},
				IsActive:    true,
			},
		},
		{
			name: "discord webhook with filters and placeholders",
			conn: model.Connection{
				FeedID: feed.ID,
				Name:   "alerts",
				Destination: model.Destination{
					Platform:  model.PlatformDiscord,
					GuildID:   "g1",
					ChannelID: "c1",
					Webhook:   &model.Webhook{ID: "w1", Token: "secret"},
				},
				Filters: &model.FilterExpression{
					Type: model.ExpressionLogical,
					Op:   model.OpOr,
					Children: []model.FilterExpression{{
						Type:  model.ExpressionRelational,
						Op:    model.OpContains,
						Left:  &model.Operand{Type: model.OperandArticle, Value: "title"},
						Right: &model.Operand{Type: model.OperandString, Value: "breaking"},
					}},
				},
				CustomPlaceholders: []model.CustomPlaceholder{{
					ID:            "p1",
					ReferenceName: "episode",
					SourceField:   "title",
					Steps:         []model.PlaceholderStep{{ID: "s1", Type: model.StepRegex, RegexSearch: `\d+`, RegexFlags: "g", Replacement: "NUM"}},
				}},
				Format:            "{title} {custom::episode}",
				MentionRoleIDs:    []string{"r1", "r2"},
				AllowRoleMentions: true,
				IsActive:          true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := tt.conn
			if err := s.CreateConnection(ctx, &conn); err != nil {
				t.Fatalf("create: %v", err)
			}
			if conn.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetConnection(ctx, conn.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			want := tt.conn
			want.ID = conn.ID
			if diff := cmp.Diff(want, *got, ignoreConnectionTS, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("GetConnection mismatch (-want +got):\n%s", diff)
			}
		})
	}

	list, err := s.ListConnections(ctx, feed.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(len(tests), len(list)); diff != "" {
		t.Errorf("connection count mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteConnection(ctx, list[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetConnection(ctx, list[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConnection() after delete error = %v, want ErrNotFound", err)
	}
}

func TestCreateConnectionRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := createTestFeed(t, s)

	tests := []struct {
		name    string
		conn    model.Connection
		wantErr error
	}{
		{
			name: "bad filter regex",
			conn: model.Connection{
				FeedID:      feed.ID,
				Destination: model.Destination{Platform: model.PlatformTelegram, ChannelID: "1"},
				Filters: &model.FilterExpression{
					Type:  model.ExpressionRelational,
					Op:    model.OpMatches,
					Left:  &model.Operand{Type: model.OperandArticle, Value: "title"},
					Right: &model.Operand{Type: model.OperandString, Value: "(unclosed"},
				},
			},
			wantErr: filter.ErrInvalidExpression,
		},
		{
			name: "bad placeholder step",
			conn: model.Connection{
				FeedID:      feed.ID,
				Destination: model.Destination{Platform: model.PlatformTelegram, ChannelID: "1"},
				CustomPlaceholders: []model.CustomPlaceholder{{
					ID:            "p1",
					ReferenceName: "broken",
					SourceField:   "title",
					Steps:         []model.PlaceholderStep{{ID: "s1", Type: model.StepRegex, RegexSearch: "[", Replacement: "x"}},
				}},
			},
			wantErr: placeholder.ErrInvalidStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := tt.conn
			err := s.CreateConnection(ctx, &conn)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateConnection() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	list, err := s.ListConnections(ctx, feed.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(0, len(list)); diff != "" {
		t.Errorf("connection count mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateConnection(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := createTestFeed(t, s)

	conn := model.Connection{
		FeedID:      feed.ID,
		Destination: model.Destination{Platform: model.PlatformDiscord, ChannelID: "c1"},
		IsActive:    true,
	}
	if err := s.CreateConnection(ctx, &conn); err != nil {
		t.Fatalf("create: %v", err)
	}

	conn.IsActive = false
	conn.Format = "{link}"
	conn.MentionRoleIDs = []string{"r9"}
	if err := s.UpdateConnection(ctx, &conn); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(conn, *got, ignoreConnectionTS, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("UpdateConnection mismatch (-want +got):\n%s", diff)
	}
}

func TestClearWebhook(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := createTestFeed(t, s)

	hooked := model.Connection{
		FeedID:      feed.ID,
		Destination: model.Destination{Platform: model.PlatformDiscord, ChannelID: "c1", Webhook: &model.Webhook{ID: "w1", Token: "t"}},
		IsActive:    true,
	}
	plain := model.Connection{
		FeedID:      feed.ID,
		Destination: model.Destination{Platform: model.PlatformDiscord, ChannelID: "c2"},
		IsActive:    true,
	}
	for _, c := range []*model.Connection{&hooked, &plain} {
		if err := s.CreateConnection(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	webhooks, err := s.ListWebhookConnections(ctx)
	if err != nil {
		t.Fatalf("list webhook connections: %v", err)
	}
	if diff := cmp.Diff([]int64{hooked.ID}, connectionIDs(webhooks)); diff != "" {
		t.Errorf("webhook connections mismatch (-want +got):\n%s", diff)
	}

	if err := s.ClearWebhook(ctx, hooked.ID); err != nil {
		t.Fatalf("clear webhook: %v", err)
	}

	got, err := s.GetConnection(ctx, hooked.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Destination.Webhook != nil {
		t.Errorf("webhook = %+v, want nil", got.Destination.Webhook)
	}
	webhooks, err = s.ListWebhookConnections(ctx)
	if err != nil {
		t.Fatalf("list webhook connections: %v", err)
	}
	if diff := cmp.Diff(0, len(webhooks)); diff != "" {
		t.Errorf("webhook connections after clear (-want +got):\n%s", diff)
	}
}

func connectionIDs(conns []model.Connection) []int64 {
	ids := make([]int64, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	return ids
}
