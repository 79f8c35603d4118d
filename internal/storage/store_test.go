package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"duyurubot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSourceRegistry(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	src := Source{ID: 42, Name: "Kimya Bölümü", ShortName: "kimya", URL: "https://example.edu/kimya"}
	if err := st.UpsertSource(ctx, src); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}
	// Seeding again must not clobber or duplicate.
	again := src
	again.Name = "renamed"
	if err := st.UpsertSource(ctx, again); err != nil {
		t.Fatalf("UpsertSource repeat: %v", err)
	}

	got, err := st.SourceByID(ctx, 42)
	if err != nil {
		t.Fatalf("SourceByID: %v", err)
	}
	if got != src {
		t.Fatalf("SourceByID = %+v, want %+v", got, src)
	}

	if _, err := st.SourceByID(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	all, err := st.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Sources len = %d, want 1", len(all))
	}
}

func TestAnnouncementDedup(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	ann := Announcement{
		SourceID:    1,
		Link:        "https://example.edu/kimya/duyuru/1",
		Title:       "Sınav programı",
		PublishedAt: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	}

	seen, err := st.AnnouncementExists(ctx, ann.Link)
	if err != nil {
		t.Fatalf("AnnouncementExists: %v", err)
	}
	if seen {
		t.Fatal("link seen before insert")
	}

	if err := st.InsertAnnouncement(ctx, ann); err != nil {
		t.Fatalf("InsertAnnouncement: %v", err)
	}
	// Duplicate insert is a no-op, not an error: the constraint is the dedup
	// mechanism.
	dup := ann
	dup.Title = "different title, same link"
	if err := st.InsertAnnouncement(ctx, dup); err != nil {
		t.Fatalf("duplicate InsertAnnouncement: %v", err)
	}

	seen, err = st.AnnouncementExists(ctx, ann.Link)
	if err != nil {
		t.Fatalf("AnnouncementExists after insert: %v", err)
	}
	if !seen {
		t.Fatal("link not seen after insert")
	}

	var count int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM announcements`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("announcement rows = %d, want 1", count)
	}
}

func TestSubscriptionInvariants(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertSource(ctx, Source{ID: 5, Name: "Fizik", ShortName: "fizik", URL: "https://example.edu/fizik"}); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}

	created, err := st.AddSubscription(ctx, 1, 5, "Ada", "ada")
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if !created {
		t.Fatal("first AddSubscription should report new")
	}

	created, err = st.AddSubscription(ctx, 1, 5, "Ada", "ada")
	if err != nil {
		t.Fatalf("AddSubscription repeat: %v", err)
	}
	if created {
		t.Fatal("second AddSubscription should report existing")
	}

	removed, err := st.RemoveSubscription(ctx, 1, 5)
	if err != nil {
		t.Fatalf("RemoveSubscription: %v", err)
	}
	if !removed {
		t.Fatal("first RemoveSubscription should report removal")
	}

	removed, err = st.RemoveSubscription(ctx, 1, 5)
	if err != nil {
		t.Fatalf("RemoveSubscription repeat: %v", err)
	}
	if removed {
		t.Fatal("second RemoveSubscription should report nothing removed")
	}
}

func TestSubscriberQueries(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, s := range []Source{
		{ID: 1, Name: "Kimya", ShortName: "kimya", URL: "https://example.edu/kimya"},
		{ID: 2, Name: "Fizik", ShortName: "fizik", URL: "https://example.edu/fizik"},
	} {
		if err := st.UpsertSource(ctx, s); err != nil {
			t.Fatalf("UpsertSource: %v", err)
		}
	}
	for _, chat := range []int64{10, 11, 12} {
		if _, err := st.AddSubscription(ctx, chat, 1, "user", ""); err != nil {
			t.Fatalf("AddSubscription: %v", err)
		}
	}
	if _, err := st.AddSubscription(ctx, 10, 2, "user", ""); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	subs, err := st.Subscribers(ctx, 1)
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("Subscribers(1) len = %d, want 3", len(subs))
	}

	mine, err := st.UserSubscriptions(ctx, 10)
	if err != nil {
		t.Fatalf("UserSubscriptions: %v", err)
	}
	if len(mine) != 2 || mine[0] != 1 || mine[1] != 2 {
		t.Fatalf("UserSubscriptions(10) = %v, want [1 2]", mine)
	}
}
