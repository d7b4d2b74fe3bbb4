// Package retry provides the retry and backoff policy shared by the downloader,
// the embedding dispatcher and the job store backends.
//
// A Policy bundles the attempt budget, the randomized wait before each attempt,
// the delay after an ordinary failure and the longer cool-down applied when the
// remote side signals throttling. Waits are context-aware.
package retry
