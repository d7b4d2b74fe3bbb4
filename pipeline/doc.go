// Package pipeline moves documents from the job store to embedded batch files.
//
// A run is made of five stages connected by bounded channels:
//
//	store -> loader -> work -> downloaders -> extractor pool
//	      -> results -> dispatchers (one per embedding endpoint) -> batch writer -> store
//
// The loader only claims as many jobs as the work queue can hold, so memory
// stays bounded whatever the size of the backlog. Closing a channel is the
// end-of-stream signal: the loader closes the work queue when nothing is left
// to claim and the last downloader to exit closes the result queue.
//
// Per-job failures never stop a run; each job resolves to exactly one outcome
// that is committed to the store. Jobs in flight when the process dies stay
// PROCESSING and are returned to PENDING by the next Run.
package pipeline
