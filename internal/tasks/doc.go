// Package tasks runs the resumable import pipeline.
//
// # Pipeline
//
// [Orchestrator.Run] drives one job:
//
//  1. Loads the job; a missing or PAUSED job is a no-op
//  2. Marks it RUNNING and resets the progress snapshot
//  3. Resolves a target identity through [AuthSession] (failure ends the job FAILED)
//  4. Hands each album link, in order, to [AlbumProcessor]
//  5. Marks the job DONE with stage "completed"
//
// [AlbumProcessor] skips DONE albums, resolves the link through the source collector,
// upserts the target album and fans items out to [ItemProcessor] over a bounded pool.
// An album is DONE once every item has been attempted, whatever the individual outcomes.
//
// [ItemProcessor] skips DONE and SKIPPED items, then downloads, stages, hashes, extracts metadata,
// checks for duplicates and uploads. Downloads and uploads go through [retry.Execute].
//
// # Resume
//
// Albums and items are keyed by (job, source url) and (job, media url). Running a job again only
// repeats work for rows that are absent, PENDING or FAILED.
//
// # Cancellation
//
// The cancel flag is polled before every album and before every item. A cancelled job keeps the
// work it already finished.
//
// # Concurrency
//
// Items of one album run on up to download_concurrency workers and upload_concurrency uploads.
// Every row write and checkpoint of a job goes through a single mutex owned by the run.
//
// # Progress Reporting
//
// A checkpoint is written after every album and item transition. The same snapshot is sent on
// the optional [ProgressUpdate] channel; sends never block.
package tasks
