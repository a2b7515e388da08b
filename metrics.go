package wfeatures

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteMetrics writes the report as a Prometheus textfile-collector file.
// The file is replaced atomically.
func WriteMetrics(path string, r *Report) error {
	reg, err := metricsRegistry(r)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func metricsRegistry(r *Report) (*prometheus.Registry, error) {
	baseline := ""
	if r.Baseline != nil {
		baseline = r.Baseline.Name
	}

	checkStatus := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wfeatures_check_status",
			Help: "Outcome of a feature check (1 for the current status, 0 otherwise)",
		},
		[]string{"baseline", "feature", "status"},
	)
	checks := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wfeatures_checks",
			Help: "Number of feature checks by status",
		},
		[]string{"baseline", "status"},
	)
	lastRun := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wfeatures_last_run_timestamp_seconds",
			Help: "Unix time the last check run finished",
		},
		[]string{"baseline"},
	)
	duration := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wfeatures_last_run_duration_seconds",
			Help: "Duration of the last check run in seconds",
		},
		[]string{"baseline"},
	)

	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{checkStatus, checks, lastRun, duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	statuses := []Status{StatusPassed, StatusFailed, StatusErrored}
	for _, res := range r.Results {
		for _, st := range statuses {
			v := 0.0
			if res.Status == st {
				v = 1
			}
			checkStatus.WithLabelValues(baseline, res.Name, st.String()).Set(v)
		}
	}

	s := r.Summary
	checks.WithLabelValues(baseline, StatusPassed.String()).Set(float64(s.Passed))
	checks.WithLabelValues(baseline, StatusFailed.String()).Set(float64(s.Failed))
	checks.WithLabelValues(baseline, StatusErrored.String()).Set(float64(s.Errored))

	if !r.Finished.IsZero() {
		lastRun.WithLabelValues(baseline).Set(float64(r.Finished.Unix()))
	}
	duration.WithLabelValues(baseline).Set(r.Duration().Seconds())
	return reg, nil
}
