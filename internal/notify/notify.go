// Package notify fans a newly stored announcement out to the subscribers of
// its source.
//
// Delivery is at-most-once and best-effort: each recipient is attempted
// independently, a failed send is logged and permanently lost for that
// recipient, and the announcement's persisted state is never affected.
package notify

import (
	"context"
	"fmt"
	"strings"

	"duyurubot/internal/storage"
	"duyurubot/pkg/logx"
)

// Messenger is the transport capability the notifier delivers through.
// Implementations must suppress inline link previews.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Directory resolves the recipients subscribed to a source.
type Directory interface {
	Subscribers(ctx context.Context, sourceID int64) ([]int64, error)
}

type Service struct {
	dir       Directory
	messenger Messenger
	log       logx.Logger
}

func New(dir Directory, m Messenger, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{dir: dir, messenger: m, log: log}
}

// Announce delivers one announcement to every subscriber of its source.
// A per-recipient send failure does not stop the remaining deliveries.
func (s *Service) Announce(ctx context.Context, src storage.Source, ann storage.Announcement) error {
	chats, err := s.dir.Subscribers(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("subscribers of %d: %w", src.ID, err)
	}
	if len(chats) == 0 {
		return nil
	}

	text := formatAnnouncement(src, ann)
	var failed int
	for _, chatID := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.messenger.Send(ctx, chatID, text); err != nil {
			failed++
			s.log.Warn("announcement delivery failed",
				logx.Int64("chat", chatID),
				logx.String("link", ann.Link),
				logx.Err(err))
		}
	}
	s.log.Info("announcement delivered",
		logx.String("link", ann.Link),
		logx.Int("recipients", len(chats)-failed),
		logx.Int("failed", failed))
	return nil
}

func formatAnnouncement(src storage.Source, ann storage.Announcement) string {
	var b strings.Builder
	b.WriteString("📢 Duyuru\n\n")
	fmt.Fprintf(&b, "👤 Kimden: %s\n", src.Name)
	fmt.Fprintf(&b, "📅 Tarih: %s\n\n", ann.PublishedAt.Format("02.01.2006"))
	b.WriteString("🗒 Konu:\n")
	fmt.Fprintf(&b, "> %s\n\n", ann.Title)
	fmt.Fprintf(&b, "🔗 %s", ann.Link)
	return b.String()
}
