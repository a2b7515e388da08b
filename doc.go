// Package wfeatures checks the installation state of Windows optional
// features against a baseline, e.g. features that must be absent from a
// session host image.
//
// # API Model
//
// A [Baseline] is an ordered list of [Expectation] items. [RunChecks]
// queries each feature through a [Querier] and returns one [CheckResult]
// per expectation, in input order. A failing query marks only its own
// result as errored; it never aborts the run.
//
// [Check] is the gate form: it returns a *[FeatureError] for the first
// expectation that does not hold, or nil.
//
// # Quick Check
//
//	q := wfeatures.NewSystemQuerier()
//	if err := wfeatures.Check(ctx, q, wfeatures.NotInstalled("SMB1Protocol")); err != nil {
//	    var fe *wfeatures.FeatureError
//	    if errors.As(err, &fe) {
//	        log.Fatalf("host not compliant: %s: %s", fe.Feature, fe.Reason)
//	    }
//	    log.Fatal(err)
//	}
//
// # Full Report
//
//	report := wfeatures.RunBaseline(ctx, wfeatures.DefaultBaseline(), q,
//	    wfeatures.WithConcurrency(4),
//	)
//	fmt.Print(report)
//	os.Exit(report.ExitCode())
//
// # Queriers
//
// [NewSystemQuerier] returns a [PowerShellQuerier] on Windows, reading state
// with Get-WindowsOptionalFeature or Get-WindowsFeature (see [QueryMethod]).
// On other platforms every query fails with [ErrUnsupportedPlatform].
//
// [LoadStates] builds a [StaticQuerier] from recorded state, either a YAML
// mapping or the output of `dism /Get-Features`, for offline audits of
// exported images.
//
// # States
//
// [FeatureState] mirrors the DISM states. Only [StateEnabled] counts as
// installed: pending transitions and removed payloads do not.
package wfeatures
