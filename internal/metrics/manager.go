package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterPostsSaved         prometheus.Counter
	CounterPostsDeleted       prometheus.Counter
	CounterRenderFailures     prometheus.Counter
	CounterHandleRequestPanic prometheus.Counter

	// histograms
	HistRenderDuration       prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

// NewTestManager returns a manager backed by a throwaway registry
func NewTestManager() *Manager {
	return NewManager("css3blog", "test", prometheus.NewRegistry())
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "route", "status"})
	counterPostsSaved := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "posts_saved",
		Help:      "The total number of saved blog posts",
	})
	counterPostsDeleted := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "posts_deleted",
		Help:      "The total number of deleted blog posts",
	})
	counterRenderFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "render_failures",
		Help:      "The total number of failed markdown renderings",
	})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})

	histRenderDuration := factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "render_duration_seconds",
		Help:      "Duration of markdown rendering calls",
		Buckets:   prometheus.DefBuckets,
	})
	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	return &Manager{
		CounterRequests:           counterRequests,
		CounterPostsSaved:         counterPostsSaved,
		CounterPostsDeleted:       counterPostsDeleted,
		CounterRenderFailures:     counterRenderFailures,
		CounterHandleRequestPanic: counterHandleRequestPanic,
		HistRenderDuration:        histRenderDuration,
		HistogramRequestDuration:  histogramRequestDuration,
	}
}
