package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Source is one scraped unit. Immutable during normal operation.
type Source struct {
	ID        int64
	Name      string
	ShortName string
	URL       string
}

// Announcement is one listing entry. Link is the global dedup key.
type Announcement struct {
	SourceID    int64
	Link        string
	Title       string
	PublishedAt time.Time
}
