// Package metrics exposes backup activity as Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinytelemetry/snapvault/internal/model"
)

const namespace = "snapvault"

// Recorder implements model.RunRecorder on top of Prometheus collectors.
type Recorder struct {
	runs         *prometheus.CounterVec
	skipped      prometheus.Counter
	pruned       prometheus.Counter
	duration     prometheus.Histogram
	archiveBytes prometheus.Gauge
	lastSuccess  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ model.RunRecorder = (*Recorder)(nil)

// NewRecorder registers the backup collectors on reg. status feeds the live
// progress and in-flight gauges; it may be nil.
func NewRecorder(reg prometheus.Registerer, status func() model.Status) *Recorder {
	f := promauto.With(reg)
	r := &Recorder{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished backup runs by outcome",
		}, []string{"outcome", "trigger"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_files_total",
			Help:      "Source files that could not be copied",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_archives_total",
			Help:      "Archives deleted by retention",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of backup runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		archiveBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_archive_bytes",
			Help:      "Size of the most recent archive",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Start time of the most recent successful run",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	if status != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_percent",
			Help:      "Progress of the current run",
		}, func() float64 {
			return status().Progress
		})
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_progress",
			Help:      "1 while a backup run is in flight",
		}, func() float64 {
			if status().InProgress {
				return 1
			}
			return 0
		})
	}
	return r
}

// RecordRun updates the collectors from a finished run.
func (r *Recorder) RecordRun(rec model.RunRecord) error {
	outcome := "failure"
	if rec.Success {
		outcome = "success"
	}
	r.runs.WithLabelValues(outcome, string(rec.Trigger)).Inc()
	r.skipped.Add(float64(len(rec.Skipped)))
	r.pruned.Add(float64(rec.Pruned))
	r.duration.Observe(rec.Elapsed.Seconds())
	if rec.Success {
		r.archiveBytes.Set(float64(rec.ArchiveSize))
		r.lastSuccess.Set(float64(rec.StartedAt.Unix()))
	}
	return nil
}

// Middleware records request counts and latencies per gin route.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
