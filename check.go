package wfeatures

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// checkConfig holds the configuration for a check run.
type checkConfig struct {
	concurrency int
	logger      zerolog.Logger
}

// CheckOption configures [RunChecks] and [Check].
type CheckOption func(*checkConfig)

// WithConcurrency runs up to n feature queries in parallel.
// Values below 2 keep the default sequential execution.
// Results are always reported in input order.
func WithConcurrency(n int) CheckOption {
	return func(c *checkConfig) {
		c.concurrency = n
	}
}

// WithLogger sets the logger used to trace individual checks.
func WithLogger(l zerolog.Logger) CheckOption {
	return func(c *checkConfig) {
		c.logger = l
	}
}

func newCheckConfig(opts []CheckOption) *checkConfig {
	cfg := &checkConfig{
		concurrency: 1,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// RunChecks queries the state of every expected feature and compares it
// against the expectation. It returns exactly one [CheckResult] per
// expectation, in input order.
//
// A failing query marks only its own result as errored; the remaining
// checks still run. The context is handed to q unchanged.
func RunChecks(ctx context.Context, expectations []Expectation, q Querier, opts ...CheckOption) []CheckResult {
	cfg := newCheckConfig(opts)
	results := make([]CheckResult, len(expectations))

	if cfg.concurrency < 2 || len(expectations) < 2 {
		for i, exp := range expectations {
			results[i] = runCheck(ctx, exp, q, cfg.logger)
		}
		return results
	}

	// Every goroutine writes its own slot and never returns an error,
	// so one failing query cannot cancel the others.
	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for i, exp := range expectations {
		g.Go(func() error {
			results[i] = runCheck(ctx, exp, q, cfg.logger)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runCheck(ctx context.Context, exp Expectation, q Querier, logger zerolog.Logger) CheckResult {
	res := CheckResult{
		Name:     exp.Name,
		Expected: exp.Installed,
	}

	state, err := q.QueryFeature(ctx, exp.Name)
	if err != nil {
		res.Status = StatusErrored
		res.Err = &QueryError{Feature: exp.Name, Err: err}
		logger.Warn().Err(err).Str("feature", exp.Name).Msg("feature query failed")
		return res
	}

	res.State = state
	res.Actual = state.Installed()
	res.Passed = res.Actual == res.Expected
	if res.Passed {
		res.Status = StatusPassed
	} else {
		res.Status = StatusFailed
	}

	logger.Debug().
		Str("feature", exp.Name).
		Stringer("state", state).
		Bool("expected", res.Expected).
		Bool("actual", res.Actual).
		Stringer("status", res.Status).
		Msg("feature checked")
	return res
}

// Check validates the expectations and returns a *[FeatureError] for the
// first one that does not pass, or nil if all are met.
// A query failure is reported with the underlying *[QueryError] as Err.
func Check(ctx context.Context, q Querier, expectations ...Expectation) error {
	return CheckWith(ctx, q, expectations, nil)
}

// CheckWith is like [Check] but accepts options.
func CheckWith(ctx context.Context, q Querier, expectations []Expectation, opts []CheckOption) error {
	for _, res := range RunChecks(ctx, expectations, q, opts...) {
		if res.Passed {
			continue
		}
		return &FeatureError{
			Feature: res.Name,
			Reason:  Diagnose(res),
			Err:     res.Err,
		}
	}
	return nil
}

// Diagnose returns a reason string explaining why a check did not pass
// and what the operator can do to fix it.
func Diagnose(res CheckResult) string {
	switch res.Status {
	case StatusPassed:
		return "ok"
	case StatusErrored:
		return "state could not be determined; run elevated on the target host or verify the feature name"
	}

	switch {
	case res.Expected && res.State == StateEnablePending:
		return "installation pending; reboot the host to complete it"
	case res.Expected:
		return fmt.Sprintf("not installed (state %s); install with Enable-WindowsOptionalFeature -Online -FeatureName %s", res.State, res.Name)
	default:
		return fmt.Sprintf("installed but must be absent; remove with Disable-WindowsOptionalFeature -Online -FeatureName %s", res.Name)
	}
}
