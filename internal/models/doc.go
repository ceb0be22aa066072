// Package models defines the entities of the import pipeline and their state machines.
//
// The ownership tree is [Job] → [Album] → [Item]; nothing is shared across jobs.
//
//   - [Job] : one end-to-end import run over an ordered list of source album links.
//     Carries its [Options], a [Progress] snapshot, a bounded [LogTail] and the
//     cooperative cancel flag.
//   - [Album] : keyed by (job, source_url). DONE is terminal and skipped on resume.
//   - [Item] : keyed by (job, source_media_url). DONE and SKIPPED are terminal;
//     FAILED is retried by a later run.
//
// [Options], [Progress] and [Metadata] carry a schema version and are serialized to JSON
// only at the storage boundary (see the repositories package).
package models
