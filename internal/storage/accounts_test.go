package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"rss_relay/internal/model"
)

func intPtr(v int) *int { return &v }

func TestAccountRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	expire := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC)
	charged := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	sup := model.Supporter{
		AccountID:               "acc-1",
		Patron:                  true,
		ExpireAt:                &expire,
		MaxFeeds:                intPtr(30),
		MaxUserFeeds:            intPtr(10),
		AllowCustomPlaceholders: true,
		Guilds:                  []string{"g1", "g2"},
		Subscription: &model.Subscription{
			ProductKey:       model.ProductTier2,
			Status:           model.SubscriptionActive,
			BillingPeriodEnd: &periodEnd,
			Benefits: model.SubscriptionBenefits{
				RefreshRateSeconds: 120,
				MaxUserFeeds:       35,
				DailyArticleLimit:  1000,
				AllowWebhooks:      true,
			},
		},
	}
	patrons := []model.Patron{
		{ID: "p1", AccountID: "acc-1", Status: model.PatronActive, Pledge: 500, PledgeLifetime: 2500, LastCharge: &charged},
		{ID: "p2", AccountID: "acc-1", Status: model.PatronFormer, Pledge: 100, PledgeOverride: intPtr(1000)},
	}
	override := model.UserFeedLimitOverride{AccountID: "acc-1", AdditionalUserFeeds: 5}

	if err := s.SaveSupporter(ctx, &sup); err != nil {
		t.Fatalf("save supporter: %v", err)
	}
	for i := range patrons {
		if err := s.SavePatron(ctx, &patrons[i]); err != nil {
			t.Fatalf("save patron: %v", err)
		}
	}
	if err := s.SaveOverride(ctx, &override); err != nil {
		t.Fatalf("save override: %v", err)
	}

	got, err := s.GetAccountRecords(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	want := model.AccountRecords{
		AccountID: "acc-1",
		Supporter: &sup,
		Patrons:   patrons,
		Override:  &override,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetAccountRecords mismatch (-want +got):\n%s", diff)
	}
}

func TestAccountRecordsMissing(t *testing.T) {
	s := newTestDB(t)

	got, err := s.GetAccountRecords(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	if diff := cmp.Diff(model.AccountRecords{AccountID: "nobody"}, got); diff != "" {
		t.Errorf("GetAccountRecords mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveSupporterDropsSubscription(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	sup := model.Supporter{
		AccountID:    "acc-1",
		Subscription: &model.Subscription{ProductKey: model.ProductTier1, Status: model.SubscriptionActive},
	}
	if err := s.SaveSupporter(ctx, &sup); err != nil {
		t.Fatalf("save supporter: %v", err)
	}
	sup.Subscription = nil
	if err := s.SaveSupporter(ctx, &sup); err != nil {
		t.Fatalf("save supporter again: %v", err)
	}

	got, err := s.GetAccountRecords(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	if got.Supporter == nil || got.Supporter.Subscription != nil {
		t.Errorf("supporter = %+v, want one without subscription", got.Supporter)
	}
}

func TestSupportersOfGuild(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for _, sup := range []model.Supporter{
		{AccountID: "a", Guilds: []string{"g1", "g2"}},
		{AccountID: "b", Guilds: []string{"g2"}},
		{AccountID: "c"},
	} {
		if err := s.SaveSupporter(ctx, &sup); err != nil {
			t.Fatalf("save supporter: %v", err)
		}
	}

	tests := []struct {
		guild string
		want  []string
	}{
		{guild: "g1", want: []string{"a"}},
		{guild: "g2", want: []string{"a", "b"}},
		{guild: "g3", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.guild, func(t *testing.T) {
			recs, err := s.SupportersOfGuild(ctx, tt.guild)
			if err != nil {
				t.Fatalf("supporters of guild: %v", err)
			}
			var got []string
			for _, r := range recs {
				got = append(got, r.AccountID)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("SupportersOfGuild mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGuildSubscription(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	missing, err := s.GetGuildSubscription(ctx, "g1")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("GetGuildSubscription() = %+v, want nil", missing)
	}

	want := model.GuildSubscription{GuildID: "g1", MaxFeeds: 100, RefreshRateSeconds: 60}
	if err := s.SaveGuildSubscription(ctx, &want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetGuildSubscription(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("GetGuildSubscription mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := createTestFeed(t, s)

	if err := s.MarkSeen(ctx, feed.ID, "old"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	n, err := s.PruneSeen(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if diff := cmp.Diff(int64(0), n); diff != "" {
		t.Errorf("pruned before cutoff mismatch (-want +got):\n%s", diff)
	}

	n, err = s.PruneSeen(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if diff := cmp.Diff(int64(1), n); diff != "" {
		t.Errorf("pruned mismatch (-want +got):\n%s", diff)
	}
}
