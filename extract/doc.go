// Package extract converts downloaded PDF bytes into plain text and classifies
// the result as embeddable, empty, or failed.
//
// Extraction is CPU-bound and runs on the pipeline's extractor pool, never on
// the goroutines doing network I/O. The same bytes always produce the same
// outcome, so empty and failed documents are terminal.
package extract
