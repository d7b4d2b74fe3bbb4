// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "docingest"

	jobsResolvedTotal     = "jobs_resolved_total"
	downloadAttemptsTotal = "download_attempts_total"
	embedRequestsTotal    = "embed_requests_total"
	batchesWrittenTotal   = "batches_written_total"
	queueDepth            = "queue_depth"
	jobStatusCount        = "job_status_count"

	// Labels
	statusLabel = "status"
	resultLabel = "result"
	queueLabel  = "queue"
)

// Download attempt results.
const (
	DownloadOK        = "ok"
	DownloadThrottled = "throttled"
	DownloadHTTPError = "http_error"
	DownloadNetError  = "network_error"
)

// Embedding request results.
const (
	EmbedOK            = "ok"
	EmbedContextLength = "context_length"
	EmbedUnavailable   = "unavailable"
)

/**
* Metrics definition
**/
var jobsResolvedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsResolvedTotal,
		Help:      "number of jobs resolved by the pipeline, by committed status",
	},
	[]string{statusLabel},
)

var downloadAttemptsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      downloadAttemptsTotal,
		Help:      "number of document download attempts, by result",
	},
	[]string{resultLabel},
)

var embedRequestsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      embedRequestsTotal,
		Help:      "number of embedding requests, by result",
	},
	[]string{resultLabel},
)

var batchesWrittenTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      batchesWrittenTotal,
		Help:      "number of batch files written",
	},
)

var queueDepthMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      queueDepth,
		Help:      "current number of items buffered between pipeline stages",
	},
	[]string{queueLabel},
)

var jobStatusCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      jobStatusCount,
		Help:      "number of jobs in each status in the job store",
	},
	[]string{statusLabel},
)

func IncreaseJobsResolved(status string, n int) {
	jobsResolvedTotalMetric.With(prometheus.Labels{statusLabel: status}).Add(float64(n))
}

func IncreaseDownloadAttempts(result string) {
	downloadAttemptsTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseEmbedRequests(result string) {
	embedRequestsTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseBatchesWritten() {
	batchesWrittenTotalMetric.Inc()
}

func UpdateQueueDepth(queue string, depth int) {
	queueDepthMetric.With(prometheus.Labels{queueLabel: queue}).Set(float64(depth))
}

func UpdateJobStatusCount(status string, count int) {
	jobStatusCountMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsResolvedTotalMetric)
	prometheus.MustRegister(downloadAttemptsTotalMetric)
	prometheus.MustRegister(embedRequestsTotalMetric)
	prometheus.MustRegister(batchesWrittenTotalMetric)
	prometheus.MustRegister(queueDepthMetric)
	prometheus.MustRegister(jobStatusCountMetric)
}
