// Package repositories implements SQLite persistence for jobs, albums and items.
//
// Key Implementations:
//   - [JobRepository] : job rows, progress checkpoints and the cancel flag
//   - [AlbumRepository] : albums keyed by (job_id, source_url)
//   - [ItemRepository] : items keyed by (job_id, source_media_url) and content-hash lookups
//
// Structured values (options, progress, metadata) are serialized to JSON only here.
// Jobs carry a human-readable sequence number from [NextSequence], independent of their UUID.
package repositories
