package wfeatures

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
)

// Report is the outcome of checking a [Baseline] against a host.
type Report struct {
	ID          string        `json:"id"`
	Baseline    *Baseline     `json:"baseline"`
	Host        string        `json:"host,omitempty"`
	HostVersion string        `json:"host_version,omitempty"`
	Started     time.Time     `json:"started"`
	Finished    time.Time     `json:"finished"`
	Results     []CheckResult `json:"results"`
	Summary     Summary       `json:"summary"`
}

// Summary counts check outcomes.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// Summarize counts the outcomes in results.
func Summarize(results []CheckResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusErrored:
			s.Errored++
		}
	}
	return s
}

// RunBaseline checks every expectation in b against q and returns a report
// stamped with a fresh ID, the host name and the host OS version.
func RunBaseline(ctx context.Context, b *Baseline, q Querier, opts ...CheckOption) *Report {
	host, _ := os.Hostname()
	r := &Report{
		ID:          uuid.NewString(),
		Baseline:    b,
		Host:        host,
		HostVersion: HostVersion(),
		Started:     time.Now().UTC(),
	}
	r.Results = RunChecks(ctx, b.Expectations, q, opts...)
	r.Finished = time.Now().UTC()
	r.Summary = Summarize(r.Results)
	return r
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return r.Summary.Passed == r.Summary.Total
}

// Duration returns how long the checks took.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// ExitCode maps the report to a process exit status:
// 0 if all checks passed, 1 if any failed, 2 if some errored and none failed.
func (r *Report) ExitCode() int {
	switch {
	case r.Summary.Failed > 0:
		return 1
	case r.Summary.Errored > 0:
		return 2
	default:
		return 0
	}
}
