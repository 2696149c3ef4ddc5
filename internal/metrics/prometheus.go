package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

const (
	namespace = "skymirror"
)

var (
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "queries_total",
			Namespace: namespace,
			Help:      "Total number of query server requests served",
		},
		[]string{"route", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "query_duration_seconds",
		Namespace: namespace,
		Help:      "Query server request duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 20),
	}, []string{"route", "status"})

	IngestMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "ingest_frames_total",
		Namespace: namespace,
		Help:      "Total number of firehose frames ingested",
	}, []string{"type", "status"})

	IngestMessageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "ingest_frame_duration_seconds",
		Namespace: namespace,
		Help:      "Time to apply each ingested firehose frame",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"status"})

	CrawlQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "crawl_queued_total",
		Namespace: namespace,
		Help:      "Number of repos currently queued for crawl",
	})

	CrawlPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "crawl_pending_total",
		Namespace: namespace,
		Help:      "Number of repos currently being crawled",
	})

	CrawlErrored = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "crawl_errored_total",
		Namespace: namespace,
		Help:      "Number of repos that failed crawling and were not retried",
	})

	CrawlRepos = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "crawl_repos_total",
		Namespace: namespace,
		Help:      "Total number of repos crawled",
	}, []string{"status"})

	CrawlRepoDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:      "crawl_repo_duration_seconds",
		Namespace: namespace,
		Help:      "Time to fetch and apply a single repo during crawl",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 20),
	})

	PLCEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "plc_entries_total",
		Namespace: namespace,
		Help:      "Total number of PLC directory export entries ingested",
	}, []string{"operation", "status"})

	PLCEntryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:      "plc_entry_duration_seconds",
		Namespace: namespace,
		Help:      "Time to apply a single PLC directory export entry",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
	})
)

func SpanEnd(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "ok")
	} else {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	span.End()
}
