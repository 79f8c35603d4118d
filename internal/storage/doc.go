// Package storage is the persistence boundary of the pipeline.
//
// It owns:
//   - The source registry (seeded from config, read each cycle)
//   - Announcement de-duplication (UNIQUE link + INSERT OR IGNORE)
//   - Subscribers and their per-source subscriptions
//
// announcements.source_id deliberately carries no foreign key: an announcement
// for a since-removed source must stay persisted even though it is never
// delivered.
package storage
