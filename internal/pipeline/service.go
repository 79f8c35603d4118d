// Package pipeline drives the fetch-and-notify cycle: every source is walked
// in turn, unseen announcements are persisted and fanned out, and the loop
// repeats on a schedule until stopped.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"duyurubot/internal/scraper"
	"duyurubot/internal/storage"
	"duyurubot/pkg/logx"
)

// Fetcher walks one source's pagination. See scraper.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, src storage.Source) ([]scraper.Row, error)
}

// Store is the persistence surface the cycle needs.
type Store interface {
	Sources(ctx context.Context) ([]storage.Source, error)
	SourceByID(ctx context.Context, id int64) (storage.Source, error)
	AnnouncementExists(ctx context.Context, link string) (bool, error)
	InsertAnnouncement(ctx context.Context, a storage.Announcement) error
}

// Notifier fans one stored announcement out to its source's subscribers.
type Notifier interface {
	Announce(ctx context.Context, src storage.Source, ann storage.Announcement) error
}

type Service struct {
	fetcher  Fetcher
	store    Store
	notifier Notifier
	spec     Spec
	log      logx.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(spec Spec, f Fetcher, st Store, n Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{fetcher: f, store: st, notifier: n, spec: spec, log: log}
}

// Start launches the cycle loop: one cycle immediately, then per schedule.
// Starting an already running service is a reported no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.log.Warn("pipeline already running; start ignored")
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(rctx, done)
	s.log.Info("pipeline started", logx.String("schedule", s.spec.String()))
}

// Stop cancels the loop and waits for the in-flight cycle to finish its
// current source. Safe to call when not running.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("pipeline stopped")
}

func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Immediate first cycle: the process may have been down for the whole
	// previous interval.
	s.runCycle(ctx)

	for {
		wait := time.Until(s.spec.Next(time.Now()))
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		s.runCycle(ctx)
	}
}

func (s *Service) runCycle(ctx context.Context) {
	start := time.Now()
	sources, err := s.store.Sources(ctx)
	if err != nil {
		s.log.Error("cycle aborted: source registry unavailable", logx.Err(err))
		return
	}

	var totalRows, totalNew, failedSources int
	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		rows, err := s.fetcher.FetchAll(ctx, src)
		if err != nil {
			// One broken source must not cost the rest of the cycle. The next
			// scheduled cycle is the retry.
			failedSources++
			s.log.Warn("source fetch failed", logx.Int64("source", src.ID),
				logx.String("slug", src.ShortName), logx.Err(err))
			continue
		}
		totalRows += len(rows)
		for _, row := range rows {
			if ctx.Err() != nil {
				return
			}
			isNew, err := s.processRow(ctx, src.ID, row)
			if err != nil {
				s.log.Warn("row processing failed", logx.String("link", row.Link), logx.Err(err))
				continue
			}
			if isNew {
				totalNew++
			}
		}
	}

	s.log.Info("cycle finished",
		logx.Int("sources", len(sources)),
		logx.Int("failed_sources", failedSources),
		logx.Int("rows", totalRows),
		logx.Int("new", totalNew),
		logx.Duration("took", time.Since(start)))
}

// processRow persists a row if its link is unseen and triggers the fan-out.
// Returns whether the row was new to the store.
func (s *Service) processRow(ctx context.Context, sourceID int64, row scraper.Row) (bool, error) {
	seen, err := s.store.AnnouncementExists(ctx, row.Link)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	ann := storage.Announcement{
		SourceID:    sourceID,
		Link:        row.Link,
		Title:       row.Title,
		PublishedAt: row.PublishedAt,
	}
	if err := s.store.InsertAnnouncement(ctx, ann); err != nil {
		return false, err
	}

	// Durability is independent of delivery: a stale source id keeps the
	// announcement stored but produces no notifications.
	src, err := s.store.SourceByID(ctx, sourceID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("source missing; skipping notification",
			logx.Int64("source", sourceID), logx.String("link", ann.Link))
		return true, nil
	}
	if err != nil {
		return true, err
	}

	if err := s.notifier.Announce(ctx, src, ann); err != nil {
		s.log.Warn("fan-out failed", logx.String("link", ann.Link), logx.Err(err))
	}
	return true, nil
}
