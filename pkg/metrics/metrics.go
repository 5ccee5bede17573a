// Package metrics exports sync runs in the Prometheus text format, for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"likesync/internal/downloader"
	"likesync/pkg/syncer"
)

const namespace = "likesync"

// Recorder collects the metrics of one run in its own registry
type Recorder struct {
	registry *prometheus.Registry

	pages            prometheus.Counter
	posts            *prometheus.CounterVec
	downloads        *prometheus.CounterVec
	downloadDuration prometheus.Histogram
	downloadBytes    prometheus.Counter
	retries          prometheus.Counter
	rateRemaining    prometheus.Gauge
	state            *prometheus.GaugeVec

	requests    prometheus.Gauge
	runDuration prometheus.Gauge
	lastRun     *prometheus.GaugeVec
	totals      *prometheus.GaugeVec
}

// New creates a Recorder whose series carry a user label, the handle or
// id the run was started with
func New(user string) *Recorder {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"user": user}
	f := promauto.With(prometheus.WrapRegistererWith(labels, reg))

	return &Recorder{
		registry: reg,
		pages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_committed_total",
			Help:      "Pages committed during the last run",
		}),
		posts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Posts seen during the last run by classification",
		}, []string{"kind"}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Media downloads during the last run by outcome",
		}, []string{"outcome"}),
		downloadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "A histogram of media download durations",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		downloadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written by media downloads",
		}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Page fetches that were retried",
		}),
		rateRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_remaining",
			Help:      "Requests left in the API window after the last page",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the state the run is in or ended in",
		}, []string{"state"}),
		requests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_requests",
			Help:      "API requests made by the last run",
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run ended, by stop reason",
		}, []string{"stop_reason"}),
		totals: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor_counter",
			Help:      "Persisted lifetime counters of the sync cursor",
		}, []string{"counter"}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Hooks returns syncer hooks feeding this recorder
func (r *Recorder) Hooks() syncer.Hooks {
	return syncer.Hooks{
		OnStateChange: func(from, to syncer.State) {
			r.state.WithLabelValues(string(from)).Set(0)
			r.state.WithLabelValues(string(to)).Set(1)
		},
		OnPage: r.ObservePage,
		OnRetry: func(int, time.Duration, error) {
			r.retries.Inc()
		},
		OnDownload: r.ObserveDownload,
	}
}

// ObservePage records a committed page
func (r *Recorder) ObservePage(p syncer.PageReport) {
	r.pages.Inc()
	r.posts.WithLabelValues("new").Add(float64(p.New))
	r.posts.WithLabelValues("known").Add(float64(p.Known))
	r.posts.WithLabelValues("external").Add(float64(p.ExternalLinks))
	if p.RateLimit.Known() {
		r.rateRemaining.Set(float64(p.RateLimit.Remaining))
	}
}

// ObserveDownload records one finished download
func (r *Recorder) ObserveDownload(res downloader.Result) {
	switch {
	case res.Err != nil:
		r.downloads.WithLabelValues("failed").Inc()
	case res.Skipped:
		r.downloads.WithLabelValues("skipped").Inc()
		return
	default:
		r.downloads.WithLabelValues("downloaded").Inc()
		r.downloadBytes.Add(float64(res.Size))
	}
	r.downloadDuration.Observe(res.Duration.Seconds())
}

// ObserveResult records the outcome of a finished run
func (r *Recorder) ObserveResult(res *syncer.Result, end time.Time) {
	if res == nil {
		return
	}
	r.requests.Set(float64(res.Requests))
	r.runDuration.Set(res.Duration.Seconds())
	reason := string(res.StopReason)
	if reason == "" {
		reason = string(syncer.StopError)
	}
	r.lastRun.WithLabelValues(reason).Set(float64(end.Unix()))

	r.totals.WithLabelValues("total_liked_seen").Set(float64(res.Totals.TotalLikedSeen))
	r.totals.WithLabelValues("non_native_url_count").Set(float64(res.Totals.NonNativeURLCount))
	r.totals.WithLabelValues("images_downloaded").Set(float64(res.Totals.ImagesDownloaded))
	r.totals.WithLabelValues("api_requests_made").Set(float64(res.Totals.APIRequestsMade))
}

// WriteTextfile atomically writes all metrics to path
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
