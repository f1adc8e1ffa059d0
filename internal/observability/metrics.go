package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lits",
		Name:      "images_total",
		Help:      "Images handled by the ingestion coordinator, by outcome",
	}, []string{"outcome"})

	FacesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lits",
		Name:      "faces_extracted_total",
		Help:      "Face encodings returned by the extraction oracle",
	})

	MatchesLinked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lits",
		Name:      "matches_linked_total",
		Help:      "Person to encoding links persisted after matching",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lits",
		Name:      "inference_duration_seconds",
		Help:      "Duration of extraction stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	TagRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lits",
		Name:      "tag_requests_total",
		Help:      "Metadata tag requests, by result",
	}, []string{"result"})

	TagQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lits",
		Name:      "tag_queue_depth",
		Help:      "Tag requests waiting in the TAGS stream",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lits",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lits",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
