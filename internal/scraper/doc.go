// Package scraper walks a source's paginated announcement listing.
//
// Requests are serialized process-wide through a single-token rate limiter and
// carry a rotating User-Agent plus a randomized pre-request delay, so the
// upstream sees a slow, varied client instead of a burst with a fixed
// fingerprint. Aggressive fetching gets the bot blocked outright, which makes
// politeness a correctness concern here.
package scraper
