package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"time"

	"github.com/leodido/structcli"
	"github.com/leodido/wfeatures"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
	"golang.org/x/term"
)

// Build metadata injected via ldflags.
// When built without ldflags (e.g., plain `go build`), these remain
// at their zero values and the version command omits them gracefully.
var (
	version = ""
	commit  = ""
	date    = ""
)

var logLevel = zerolog.WarnLevel

var logLevelIds = map[zerolog.Level][]string{
	zerolog.TraceLevel: {"trace"},
	zerolog.DebugLevel: {"debug"},
	zerolog.InfoLevel:  {"info"},
	zerolog.WarnLevel:  {"warn"},
	zerolog.ErrorLevel: {"error"},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wfeatures",
		Short: "Windows optional feature compliance checks",
		Long: `wfeatures checks the installation state of Windows optional features
against a baseline, e.g. features that must be absent from a session host image.

It queries the running host through PowerShell (DISM or ServerManager cmdlets),
or evaluates recorded state from a 'dism /Get-Features' dump or a YAML file.`,
		SilenceUsage: true,
		PersistentPreRun: func(c *cobra.Command, args []string) {
			setupLogging(os.Stderr)
		},
	}

	root.PersistentFlags().Var(
		enumflag.New(&logLevel, "level", logLevelIds, enumflag.EnumCaseInsensitive),
		"log-level", "Log level (trace, debug, info, warn, error)",
	)

	root.AddCommand(checkCmd())
	root.AddCommand(baselineCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(versionCmd())
	return root
}

func setupLogging(w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).Level(logLevel)
}

type outputFormat int

const (
	formatText outputFormat = iota
	formatJSON
)

var formatIds = map[outputFormat][]string{
	formatText: {"text"},
	formatJSON: {"json"},
}

var methodIds = map[wfeatures.QueryMethod][]string{
	wfeatures.MethodAuto:          {wfeatures.MethodAuto.String()},
	wfeatures.MethodDISM:          {wfeatures.MethodDISM.String()},
	wfeatures.MethodServerManager: {wfeatures.MethodServerManager.String()},
}

func defineFormat(fieldValue reflect.Value, descr string) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*outputFormat)
	return enumflag.New(fieldPtr, "format", formatIds, enumflag.EnumCaseInsensitive), descr
}

func decodeFormat(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseEnum(s, formatIds, "format")
}

func defineMethod(fieldValue reflect.Value, descr string) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*wfeatures.QueryMethod)
	return enumflag.New(fieldPtr, "method", methodIds, enumflag.EnumCaseInsensitive), descr
}

func decodeMethod(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseEnum(s, methodIds, "method")
}

func parseEnum[E ~int](input string, ids map[E][]string, typename string) (E, error) {
	var v E
	enumValue := enumflag.New(&v, typename, ids, enumflag.EnumCaseInsensitive)
	if err := enumValue.Set(strings.TrimSpace(input)); err != nil {
		return v, fmt.Errorf("invalid %s %q: %w", typename, input, err)
	}
	return v, nil
}

// CheckOptions defines flags for the check subcommand.
type CheckOptions struct {
	Baseline    string                `flag:"baseline" flagshort:"b" flagdescr:"Baseline YAML file (default: built-in Windows 10 Enterprise baseline)"`
	States      string                `flag:"states" flagshort:"s" flagdescr:"Evaluate recorded states (YAML or 'dism /Get-Features' output) instead of querying the host"`
	Method      wfeatures.QueryMethod `flag:"method" flagshort:"m" flagdescr:"Query method (auto, dism, servermanager)" flagcustom:"true"`
	Concurrency int                   `flag:"concurrency" flagshort:"c" flagdescr:"Maximum parallel feature queries"`
	Format      outputFormat          `flag:"format" flagshort:"f" flagdescr:"Output format (text, json)" flagcustom:"true"`
	MetricsFile string                `flag:"metrics-file" flagdescr:"Write a Prometheus textfile-collector file"`
}

func (o *CheckOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *CheckOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineFormat(fieldValue, descr)
}

func (o *CheckOptions) DecodeFormat(input any) (any, error) {
	return decodeFormat(input)
}

func (o *CheckOptions) DefineMethod(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineMethod(fieldValue, descr)
}

func (o *CheckOptions) DecodeMethod(input any) (any, error) {
	return decodeMethod(input)
}

func checkCmd() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the host against a feature baseline",
		Long: `Check that every feature in the baseline has its expected installation state.
Exits with code 0 if all checks pass, 1 if any check fails,
and 2 if some feature states could not be determined.`,
		Args: cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			report, err := runCheck(c.Context(), opts, c.OutOrStdout())
			if err != nil {
				return err
			}
			if code := report.ExitCode(); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, w io.Writer) (*wfeatures.Report, error) {
	b, err := loadBaseline(opts.Baseline)
	if err != nil {
		return nil, err
	}
	q, err := newQuerier(opts.States, opts.Method)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("baseline", b.Name).
		Int("features", len(b.Expectations)).
		Msg("running feature checks")

	report := wfeatures.RunBaseline(ctx, b, q,
		wfeatures.WithConcurrency(opts.Concurrency),
		wfeatures.WithLogger(log.Logger),
	)

	log.Info().
		Str("report", report.ID).
		Int("passed", report.Summary.Passed).
		Int("failed", report.Summary.Failed).
		Int("errored", report.Summary.Errored).
		Dur("took", report.Duration()).
		Msg("feature checks finished")

	if opts.MetricsFile != "" {
		if err := wfeatures.WriteMetrics(opts.MetricsFile, report); err != nil {
			return nil, err
		}
		log.Debug().Str("path", opts.MetricsFile).Msg("metrics written")
	}

	if opts.Format == formatJSON {
		return report, printJSON(w, report)
	}
	report.Format(w, useColor(w))
	return report, nil
}

// BaselineOptions defines flags for the baseline subcommand.
type BaselineOptions struct {
	Baseline string       `flag:"baseline" flagshort:"b" flagdescr:"Baseline YAML file (default: built-in Windows 10 Enterprise baseline)"`
	Format   outputFormat `flag:"format" flagshort:"f" flagdescr:"Output format (text, json)" flagcustom:"true"`
}

func (o *BaselineOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *BaselineOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineFormat(fieldValue, descr)
}

func (o *BaselineOptions) DecodeFormat(input any) (any, error) {
	return decodeFormat(input)
}

func baselineCmd() *cobra.Command {
	opts := &BaselineOptions{}

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Display the effective feature baseline",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			b, err := loadBaseline(opts.Baseline)
			if err != nil {
				return err
			}
			if opts.Format == formatJSON {
				return printJSON(c.OutOrStdout(), b)
			}
			fmt.Fprint(c.OutOrStdout(), b)
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// QueryOptions defines flags for the query subcommand.
type QueryOptions struct {
	States string                `flag:"states" flagshort:"s" flagdescr:"Read recorded states (YAML or 'dism /Get-Features' output) instead of querying the host"`
	Method wfeatures.QueryMethod `flag:"method" flagshort:"m" flagdescr:"Query method (auto, dism, servermanager)" flagcustom:"true"`
	Format outputFormat          `flag:"format" flagshort:"f" flagdescr:"Output format (text, json)" flagcustom:"true"`
}

func (o *QueryOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *QueryOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineFormat(fieldValue, descr)
}

func (o *QueryOptions) DecodeFormat(input any) (any, error) {
	return decodeFormat(input)
}

func (o *QueryOptions) DefineMethod(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineMethod(fieldValue, descr)
}

func (o *QueryOptions) DecodeMethod(input any) (any, error) {
	return decodeMethod(input)
}

// featureQuery is the outcome of querying a single feature.
type featureQuery struct {
	Name      string                 `json:"name"`
	State     wfeatures.FeatureState `json:"state"`
	Installed bool                   `json:"installed"`
	Error     string                 `json:"error,omitempty"`
}

func queryCmd() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query FEATURE...",
		Short: "Display the installation state of features",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			return runQuery(c.Context(), opts, args, c.OutOrStdout())
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, names []string, w io.Writer) error {
	q, err := newQuerier(opts.States, opts.Method)
	if err != nil {
		return err
	}

	results := make([]featureQuery, 0, len(names))
	failed := 0
	for _, name := range names {
		fq := featureQuery{Name: name}
		st, err := q.QueryFeature(ctx, name)
		if err != nil {
			log.Debug().Err(err).Str("feature", name).Msg("feature query failed")
			fq.Error = err.Error()
			failed++
		} else {
			fq.State = st
			fq.Installed = st.Installed()
		}
		results = append(results, fq)
	}

	if opts.Format == formatJSON {
		if err := printJSON(w, results); err != nil {
			return err
		}
	} else {
		for _, fq := range results {
			if fq.Error != "" {
				fmt.Fprintf(w, "%s: error: %s\n", fq.Name, fq.Error)
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", fq.Name, fq.State)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d feature queries failed", failed, len(names))
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show tool and host OS version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			w := c.OutOrStdout()
			if version != "" {
				fmt.Fprintf(w, "wfeatures %s", version)
				if commit != "" {
					fmt.Fprintf(w, " (%s)", commit)
				}
				if date != "" {
					fmt.Fprintf(w, " built %s", date)
				}
				fmt.Fprintln(w)
			} else {
				fmt.Fprintln(w, "wfeatures (dev)")
			}

			if v := wfeatures.HostVersion(); v != "" {
				fmt.Fprintf(w, "Host OS: %s\n", v)
			}
			return nil
		},
	}
}

func loadBaseline(path string) (*wfeatures.Baseline, error) {
	if path == "" {
		return wfeatures.DefaultBaseline(), nil
	}
	return wfeatures.LoadBaseline(path)
}

func newQuerier(statesPath string, method wfeatures.QueryMethod) (wfeatures.Querier, error) {
	if statesPath != "" {
		sq, err := wfeatures.LoadStates(statesPath)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", statesPath).Int("features", len(sq)).Msg("loaded recorded feature states")
		return sq, nil
	}
	return wfeatures.NewSystemQuerier(
		wfeatures.WithMethod(method),
		wfeatures.WithQueryLogger(log.Logger),
	), nil
}

func useColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
