// Package metrics records lifecycle stage outcomes. While the pipeline
// runs, metrics are served on the status endpoint; right before handoff
// (or failure exit) they are flushed to a node-exporter textfile so the
// launch remains observable after the supervisor's process image is gone.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Recorder owns the launch's metric registry.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageResult   *prometheus.CounterVec
	launchInfo    *prometheus.GaugeVec
}

// NewRecorder creates a recorder with the stagezero metric set registered.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stagezero_stage_duration_seconds",
		Help:    "Wall time of each lifecycle stage",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	r.stageResult = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stagezero_stage_result_total",
		Help: "Lifecycle stage outcomes by result",
	}, []string{"stage", "result"})

	r.launchInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stagezero_launch_info",
		Help: "Static launch metadata (value is always 1)",
	}, []string{"run_id", "base_image", "service"})

	r.registry.MustRegister(r.stageDuration, r.stageResult, r.launchInfo)
	return r
}

// SetLaunchInfo publishes the launch identity labels.
func (r *Recorder) SetLaunchInfo(runID, baseImage, service string) {
	r.launchInfo.WithLabelValues(runID, baseImage, service).Set(1)
}

// ObserveStage records one stage outcome.
func (r *Recorder) ObserveStage(stage string, duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	r.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	r.stageResult.WithLabelValues(stage, result).Inc()
}

// Handler serves the registry for the status API's /metrics route.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry in Prometheus text format. The write is
// tmp-then-rename so a scraping textfile collector never sees a torn file.
func (r *Recorder) WriteTextfile(path string) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create textfile directory: %w", err)
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write textfile: %w", err)
	}
	return os.Rename(tmp, path)
}
